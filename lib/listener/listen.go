/*
Copyright 2022 Huawei Cloud Computing Technologies Co., Ltd.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

 http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package listener

import (
	"net"
	"strings"
	"sync"

	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/logger"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LimitListener accepts at most n simultaneous connections and closes
// extra ones. Peers whose host is in the white list are never limited.
type LimitListener struct {
	net.Listener
	slots     chan struct{}
	whiteList []string
	maxLimit  int
	active    atomic.Int64

	logger *logger.Logger
}

// NewLimitListener wraps l. list is a comma separated list of host:port.
func NewLimitListener(l net.Listener, n int, list string) *LimitListener {
	var whiteList []string
	if list != "" {
		whiteList = strings.Split(list, ",")
	}
	return &LimitListener{
		Listener:  l,
		slots:     make(chan struct{}, n),
		whiteList: whiteList,
		maxLimit:  n,
		logger:    logger.NewLogger(errno.ModuleNetwork),
	}
}

// Active is the number of limited connections currently open.
func (l *LimitListener) Active() int64 {
	return l.active.Load()
}

func (l *LimitListener) release() {
	<-l.slots
	l.active.Dec()
}

func (l *LimitListener) Accept() (net.Conn, error) {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}

		if checkInWhiteList(l.whiteList, c.RemoteAddr().String()) {
			return c, nil
		}

		select {
		case l.slots <- struct{}{}:
			l.active.Inc()
			return &limitListenerConn{Conn: c, releaseFunc: l.release}, nil
		default:
			l.logger.Warn("connection exceed!", zap.Int("connection limit", l.maxLimit))
			if err = c.Close(); err != nil {
				return nil, err
			}
		}
	}
}

type limitListenerConn struct {
	net.Conn
	releaseOnce sync.Once
	releaseFunc func()
}

func (l *limitListenerConn) Close() error {
	err := l.Conn.Close()
	l.releaseOnce.Do(l.releaseFunc)
	return err
}

/*
whiteList: [127.0.0.1:6667,127.0.0.2:6667]
remoteAddr: 127.0.0.1:50312
*/
func checkInWhiteList(whiteList []string, remoteAddr string) bool {
	if len(whiteList) == 0 || remoteAddr == "" {
		return false
	}

	remoteIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}

	for _, address := range whiteList {
		localIP, _, err := net.SplitHostPort(strings.TrimSpace(address))
		if err != nil {
			continue
		}
		if localIP == remoteIP {
			return true
		}
	}
	return false
}
