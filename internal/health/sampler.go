package health

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

type Reading struct {
	MemoryMB   float64
	CPUPercent float64
}

// Sampler reads the current resource use of the process.
type Sampler interface {
	Sample(ctx context.Context) (Reading, error)
}

// ProcessSampler reports resident memory and CPU percent of this process.
// CPU is measured since the previous call; the constructor takes the first
// baseline so the first Sample already covers real work.
type ProcessSampler struct {
	proc *process.Process
}

func NewProcessSampler() (*ProcessSampler, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open self process: %w", err)
	}
	if _, err := p.Percent(0); err != nil {
		return nil, fmt.Errorf("cpu baseline: %w", err)
	}
	return &ProcessSampler{proc: p}, nil
}

func (s *ProcessSampler) Sample(ctx context.Context) (Reading, error) {
	mem, err := s.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("memory info: %w", err)
	}
	cpu, err := s.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return Reading{}, fmt.Errorf("cpu percent: %w", err)
	}
	return Reading{
		MemoryMB:   float64(mem.RSS) / (1024 * 1024),
		CPUPercent: cpu,
	}, nil
}
