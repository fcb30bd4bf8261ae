/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package plugin

import (
	"context"
	"fmt"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/appvolume-shm/pkg/shm"
)

// Health check names.
const (
	LivenessCheckName  = "shared-state-mapped"
	ReadinessCheckName = "shared-state-version"
)

// HealthHandler returns a handler serving /live and /ready. Liveness maps the
// shared state if needed; readiness also requires the layout version of this
// build.
func (d *Driver) HealthHandler() healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck(LivenessCheckName, d.checkMapped)
	h.AddReadinessCheck(ReadinessCheckName, d.checkVersion)
	return h
}

func (d *Driver) checkMapped() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapLocked(context.Background(), 0)
}

func (d *Driver) checkVersion() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.mapLocked(context.Background(), 0); err != nil {
		return err
	}
	if v := d.accessor.VersionMismatch(); v != 0 {
		return fmt.Errorf("%w: found %d, want %d", shm.ErrVersionMismatch, v, shm.Version)
	}
	if v := d.accessor.State().Header.Version(); v != shm.Version {
		return fmt.Errorf("%w: found %d, want %d", shm.ErrVersionMismatch, v, shm.Version)
	}
	return nil
}
