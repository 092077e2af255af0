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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

const namespace = "tsgrid"

func NewDesc(subsystem, name, help string, labels []string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, subsystem, name),
		help,
		labels,
		nil,
	)
}

// CoordinatorStats counts fan-out and remote call outcomes.
type CoordinatorStats struct {
	FanOutCalls       atomic.Int64
	FanOutUnits       atomic.Int64
	SoftFailures      atomic.Int64
	HardFailures      atomic.Int64
	Timeouts          atomic.Int64
	Interrupts        atomic.Int64
	RemoteCalls       atomic.Int64
	RemoteFailures    atomic.Int64
	ReplicasExhausted atomic.Int64
	LocalCalls        atomic.Int64
}

type counterDesc struct {
	desc  *prometheus.Desc
	value *atomic.Int64
}

// BaseCollector exposes a CoordinatorStats as prometheus counters.
type BaseCollector struct {
	counters []counterDesc
}

func NewBaseCollector(subsystem string, stats *CoordinatorStats) *BaseCollector {
	def := func(name, help string, v *atomic.Int64) counterDesc {
		return counterDesc{desc: NewDesc(subsystem, name, help, nil), value: v}
	}
	return &BaseCollector{counters: []counterDesc{
		def("fanout_calls_total", "Fan-out calls started.", &stats.FanOutCalls),
		def("fanout_units_total", "Units submitted by fan-out calls.", &stats.FanOutUnits),
		def("fanout_soft_failures_total", "Units that failed and contributed nothing.", &stats.SoftFailures),
		def("fanout_hard_failures_total", "Units whose failure failed the whole call.", &stats.HardFailures),
		def("fanout_timeouts_total", "Fan-out calls that returned partial results on timeout.", &stats.Timeouts),
		def("fanout_interrupts_total", "Fan-out calls interrupted by the caller.", &stats.Interrupts),
		def("remote_calls_total", "Remote schema calls issued.", &stats.RemoteCalls),
		def("remote_failures_total", "Remote schema calls that failed.", &stats.RemoteFailures),
		def("replicas_exhausted_total", "Remote group calls no replica answered.", &stats.ReplicasExhausted),
		def("local_calls_total", "Schema calls answered by a local group.", &stats.LocalCalls),
	}}
}

func (c *BaseCollector) Collect(ch chan<- prometheus.Metric) {
	for _, cd := range c.counters {
		ch <- prometheus.MustNewConstMetric(cd.desc, prometheus.CounterValue, float64(cd.value.Load()))
	}
}

func (c *BaseCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, cd := range c.counters {
		ch <- cd.desc
	}
}

// RemoteCallDuration observes the latency of remote schema calls per call and node.
var RemoteCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "coordinator",
	Name:      "remote_call_duration_seconds",
	Help:      "Latency of remote schema calls.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
}, []string{"call", "node"})

// Register adds the coordinator collectors to reg.
func Register(reg prometheus.Registerer, stats *CoordinatorStats) error {
	if err := reg.Register(NewBaseCollector("coordinator", stats)); err != nil {
		return err
	}
	return reg.Register(RemoteCallDuration)
}
