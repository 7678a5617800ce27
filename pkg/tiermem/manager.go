// Copyright 2021 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tiermem

import (
	"encoding/json"
	"runtime"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Config is the top-level, JSON-sub-config daemon configuration, loaded
// from YAML by cmd/tiermemd in the shape of the teacher's
// cmd/memtierd/main.go Config struct.
type Config struct {
	// DRAMSize and DRAMBuffer are mutually exclusive budget specs: set
	// exactly one. DRAMSize is an absolute byte budget; DRAMBuffer leaves
	// that many bytes free on the DRAM node instead, sizing the budget as
	// (node total - buffer).
	DRAMSize      string  `yaml:"dram_size"`
	DRAMBuffer    string  `yaml:"dram_buffer"`
	RawTracePath  string  `yaml:"raw_trace_path"`
	ResolvedTrace string  `yaml:"resolved_trace_path"`
	MigrationMs   int     `yaml:"migration_interval_ms"`
	CPUs          []int   `yaml:"cpus"`
	WeightVA      float64 `yaml:"weight_va"`
	WeightCyc     float64 `yaml:"weight_cyc"`
	WeightIP      float64 `yaml:"weight_ip"`
	UseDFS        bool    `yaml:"use_dfs"`
}

// dramSizeBytes resolves the DRAM tier budget. Exactly one of
// DRAMSize/DRAMBuffer must be set; specifying neither or both is a fatal
// configuration error, matching original_source/src/tmem.h's "Use either
// DRAM_BUFFER or DRAM_SIZE" contract.
func (c *Config) dramSizeBytes() (uint64, error) {
	haveSize := c.DRAMSize != ""
	haveBuffer := c.DRAMBuffer != ""
	switch {
	case haveSize && haveBuffer:
		return 0, errors.New("exactly one of dram_size or dram_buffer must be set, both were given")
	case !haveSize && !haveBuffer:
		return 0, errors.New("exactly one of dram_size or dram_buffer must be set, neither was given")
	case haveSize:
		n, err := ParseBytes(c.DRAMSize)
		if err != nil {
			return 0, wrapf(err, "dram_size")
		}
		return uint64(n), nil
	default:
		buf, err := ParseBytes(c.DRAMBuffer)
		if err != nil {
			return 0, wrapf(err, "dram_buffer")
		}
		total, err := nodeMemTotalBytes(DRAMNode)
		if err != nil {
			return 0, wrapf(err, "reading dram node %d total memory", DRAMNode)
		}
		if uint64(buf) >= total {
			return 0, errors.Errorf("dram_buffer %d exceeds dram node %d total memory %d", buf, DRAMNode, total)
		}
		return total - uint64(buf), nil
	}
}

// Manager is the Lifecycle Controller: it owns every engine's
// construction and spawn order (stats, then ingestor, then migrator,
// matching original_source/src/tmem.c's tmem_init), and tears them down
// cooperatively on Stop.
type Manager struct {
	config *Config

	arena *arena
	table *pageTable
	hot   *pageList
	cold  *pageList
	free  *pageList

	classifier *classifier
	predictor  *NeighborPredictor
	allocator  *Allocator
	ingestor   *Ingestor
	migrator   *Migrator
	telemetry  *Telemetry

	running bool
}

// NewManager builds every component without starting any of them. A
// construction error from one component does not prevent the others
// from being attempted: every failure is aggregated via
// hashicorp/go-multierror so a caller sees every problem in one report,
// not just the first.
func NewManager(config *Config) (*Manager, error) {
	var errs *multierror.Error

	dramSize, err := config.dramSizeBytes()
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	m := &Manager{config: config}
	m.arena = newArena()
	m.table = newPageTable()
	m.hot = newPageList(cohortHot)
	m.cold = newPageList(cohortCold)
	m.free = newPageList(cohortFree)

	m.classifier = newClassifier(m.hot, m.cold)
	m.classifier.throttled = m.ingestorThrottled
	m.allocator = NewAllocator(m.arena, m.table, m.cold, m.free, dramSize)

	m.predictor = NewNeighborPredictor(m.table, m.migrationLatencyEstimate, m.ingestorThrottled)
	if config.WeightVA != 0 || config.WeightCyc != 0 || config.WeightIP != 0 {
		if err := m.predictor.SetWeights(config.WeightVA, config.WeightCyc, config.WeightIP); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	m.predictor.SetLookahead(config.UseDFS)

	ncpus := len(config.CPUs)
	if ncpus == 0 {
		ncpus = runtime.NumCPU()
	}
	ing, err := NewIngestor(ncpus, m.table, m.classifier, m.predictor, config.RawTracePath, config.ResolvedTrace)
	if err != nil {
		errs = multierror.Append(errs, wrapf(err, "ingestor"))
	}
	m.ingestor = ing

	m.telemetry = NewTelemetry(m.hot, m.cold, m.free, m.allocator, m.ingestor)

	migCfg := &MigratorConfig{IntervalMs: config.MigrationMs, Rebind: m.rebind}
	if migCfg.IntervalMs <= 0 {
		migCfg.IntervalMs = 10
	}
	m.migrator = NewMigrator(m.hot, m.cold, m.classifier, m.allocator, m.telemetry, migCfg)
	if m.ingestor != nil {
		m.ingestor.SetPrefetchSink(m.migrator.RequestPrefetch)
	}

	if errs.ErrorOrNil() != nil {
		return nil, errs
	}
	return m, nil
}

// rebind is the migrator's tier-change primitive, backed by mbind(2). It
// binds only p.Size() bytes, since the trailing descriptor of a range may
// cover fewer than a full TierPageSize.
func (m *Manager) rebind(p *Page, tier Tier) error {
	node := DRAMNode
	if tier == TierREM {
		node = REMNode
	}
	return mbindRebind(uintptr(p.Addr()), uintptr(p.Size()), node)
}

func (m *Manager) migrationLatencyEstimate() uint64 {
	// Rough cycles-per-migration estimate; refined at runtime against
	// telemetry in a future revision, see DESIGN.md.
	return 50_000
}

func (m *Manager) ingestorThrottled() bool {
	return m.ingestor.stats.throttled()
}

// Allocate exposes the allocation gateway to an external mmap/munmap
// interposer.
func (m *Manager) Allocate(addr, length uint64) ([]*Page, error) {
	return m.allocator.Allocate(addr, length)
}

func (m *Manager) Release(addr, length uint64) error {
	return m.allocator.Release(addr, length)
}

func (m *Manager) Telemetry() *Telemetry { return m.telemetry }

// GetConfigJson renders the manager's effective configuration as JSON,
// matching the teacher's SetConfigJson/GetConfigJson per-component
// contract (see e.g. pkg/memtier/mover.go's MoverConfig).
func (m *Manager) GetConfigJson() string {
	b, err := json.Marshal(m.config)
	if err != nil {
		return ""
	}
	return string(b)
}

// Start spawns the engines in the order the original tiering prototype
// does: stats first so no event is ever recorded before an observer
// exists, then the ingestor, then the migrator.
func (m *Manager) Start() error {
	if m.running {
		return nil
	}
	go m.telemetry.Run()
	m.ingestor.Start()
	m.migrator.Start()
	m.running = true
	log.Infof("manager: started with dram budget %s", Bytes(m.allocator.DRAMSize()).Humanized())
	return nil
}

// Stop tears engines down cooperatively: new allocations are rejected
// first, then the ingestor and migrator are asked to drain and exit.
// Pages already mapped into the tracked address space are left mapped;
// this package never unmaps application memory on teardown.
func (m *Manager) Stop() {
	if !m.running {
		return
	}
	m.allocator.Shutdown()
	m.ingestor.Stop()
	m.migrator.Stop()
	m.telemetry.Stop()
	m.running = false
	log.Infof("manager: stopped")
}
