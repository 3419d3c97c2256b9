package app

import (
	"context"
	"time"

	"signalgen/internal/config"
	"signalgen/internal/signalgen"
	"signalgen/internal/storage"
	logx "signalgen/pkg/logx"
)

// PlanEntry is the upcoming boundary of one configured signal.
type PlanEntry struct {
	Name     string        `json:"name"`
	Period   string        `json:"period"`
	Policy   string        `json:"policy"`
	Timezone string        `json:"timezone"`
	Next     time.Time     `json:"next"`
	In       time.Duration `json:"in"`
}

func loadValid(cfgPath string) (*config.Config, error) {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Plan returns the next boundary after now for every signal in the config.
func Plan(cfgPath string, now time.Time) ([]PlanEntry, error) {
	cfg, err := loadValid(cfgPath)
	if err != nil {
		return nil, err
	}
	return plan(cfg, now)
}

func plan(cfg *config.Config, now time.Time) ([]PlanEntry, error) {
	sgs, err := mapSignals(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]PlanEntry, 0, len(sgs))
	for _, sg := range sgs {
		p, err := signalgen.NewPeriod(sg.Unit, sg.Count)
		if err != nil {
			return nil, err
		}
		policy := signalgen.PolicyAnticipate
		if sg.Strict {
			policy = signalgen.PolicyStrict
		}
		clock, err := signalgen.NewAlignClock(p, sg.PollResolution(), policy, sg.Location)
		if err != nil {
			return nil, err
		}
		next := clock.Next(now)
		out = append(out, PlanEntry{
			Name:     sg.Name,
			Period:   p.String(),
			Policy:   policy.String(),
			Timezone: clock.Location().String(),
			Next:     next,
			In:       next.Sub(now),
		})
	}
	return out, nil
}

// History returns up to limit stored fires of signal ("" for all), newest first.
func History(ctx context.Context, cfgPath, signal string, limit int) ([]storage.FireRecord, error) {
	cfg, err := loadValid(cfgPath)
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return st.RecentFires(ctx, signal, limit)
}
