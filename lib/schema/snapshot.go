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

package schema

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
	"github.com/tsgrid/tsgrid/lib/errno"
	"github.com/tsgrid/tsgrid/lib/metapath"
	bolt "go.etcd.io/bbolt"
)

var (
	storageGroupBucket = []byte("storage_groups")
	timeseriesBucket   = []byte("timeseries")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type timeseriesRecord struct {
	Schema  MeasurementSchema `json:"schema"`
	Aligned bool              `json:"aligned"`
}

// SnapshotStore persists a Processor into a bbolt file.
type SnapshotStore struct {
	db *bolt.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, errors.Wrapf(err, "mkdir failed:%s", filepath.Dir(path))
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open schema snapshot %s", path)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot with the content of p.
func (s *SnapshotStore) Save(p *Processor) error {
	sgs := p.StorageGroups()
	series := p.AllTimeseries()
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{storageGroupBucket, timeseriesBucket} {
			if tx.Bucket(name) != nil {
				if err := tx.DeleteBucket(name); err != nil {
					return errors.Wrapf(err, "drop bucket %s", name)
				}
			}
		}
		sgb, err := tx.CreateBucket(storageGroupBucket)
		if err != nil {
			return errors.Wrap(err, "create storage group bucket")
		}
		for _, sg := range sgs {
			if err = sgb.Put([]byte(sg.String()), []byte{}); err != nil {
				return errors.Wrapf(err, "put storage group %s", sg)
			}
		}
		tsb, err := tx.CreateBucket(timeseriesBucket)
		if err != nil {
			return errors.Wrap(err, "create timeseries bucket")
		}
		for i := range series {
			buf, err := json.Marshal(timeseriesRecord{Schema: series[i].Schema, Aligned: series[i].Aligned})
			if err != nil {
				return errors.Wrapf(err, "cannot marshal timeseries %s", series[i].Path)
			}
			if err = tsb.Put([]byte(series[i].Path.String()), buf); err != nil {
				return errors.Wrapf(err, "put timeseries %s", series[i].Path)
			}
		}
		return nil
	})
}

// Load fills an empty processor from the stored snapshot.
func (s *SnapshotStore) Load(p *Processor) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(storageGroupBucket); b != nil {
			if err := b.ForEach(func(k, _ []byte) error {
				sg, err := metapath.Parse(string(k))
				if err != nil {
					return corrupted(err)
				}
				return p.SetStorageGroup(sg)
			}); err != nil {
				return err
			}
		}
		b := tx.Bucket(timeseriesBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			path, err := metapath.Parse(string(k))
			if err != nil {
				return corrupted(err)
			}
			var rec timeseriesRecord
			if err = json.Unmarshal(v, &rec); err != nil {
				return corrupted(errors.Wrapf(err, "cannot parse timeseries %s", k))
			}
			if rec.Aligned {
				return p.CreateAlignedTimeseries(path.Device(), []MeasurementSchema{rec.Schema})
			}
			return p.CreateTimeseries(path, rec.Schema)
		})
	})
}

func corrupted(err error) error {
	return errno.NewError(errno.SnapshotCorrupted, err).SetCause(err)
}
