/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package stats

import (
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	s := New()
	s.IncSessionsCreated()
	s.IncSessionsCreated()
	s.IncPacketsIn("audio")
	s.IncBytesIn("audio", 100)
	s.IncBucketDrops("video")
	s.SetActiveSessions(5)

	snap := s.Snapshot()
	require.EqualValues(t, 2, snap.SessionsCreated)
	require.EqualValues(t, 1, snap.PacketsIn["audio"])
	require.EqualValues(t, 100, snap.BytesIn["audio"])
	require.EqualValues(t, 1, snap.BucketDrops["video"])
	require.EqualValues(t, 5, snap.ActiveSessions)
}

func TestCountersReset(t *testing.T) {
	s := New()
	s.IncSessionsCreated()
	s.Reset()
	require.Zero(t, s.Snapshot().SessionsCreated)
}

func TestCountersConcurrentIncrement(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncPacketsIn("video")
		}()
	}
	wg.Wait()
	require.EqualValues(t, 100, s.Snapshot().PacketsIn["video"])
}

func TestJSONHandlerServesSnapshot(t *testing.T) {
	s := New()
	s.IncSessionsCreated()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/stats", nil)
	JSONHandler(s).ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "SessionsCreated")
}

func TestPromExporterServesMetrics(t *testing.T) {
	s := New()
	s.IncSessionsCreated()
	s.IncPacketsIn("audio")
	exp := NewPromExporter(s, "rtprelay")
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	exp.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "rtprelay_sessions_created_total")
	require.Contains(t, rec.Body.String(), "rtprelay_packets_in_total")
}
