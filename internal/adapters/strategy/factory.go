package strategy

import (
	"fmt"

	"github.com/rollwave/rollwave/internal/domain"
	"github.com/rollwave/rollwave/internal/ports"
)

// Factory resolves strategy implementations by type. Instances are built
// once and shared: every variant is safe for concurrent executions, and
// BlueGreen additionally holds the live traffic pointer across requests.
type Factory struct {
	strategies map[domain.StrategyType]ports.DeploymentStrategy
	blueGreen  *BlueGreen
}

func NewFactory(deps Deps) *Factory {
	bg := NewBlueGreen(deps)
	return &Factory{
		blueGreen: bg,
		strategies: map[domain.StrategyType]ports.DeploymentStrategy{
			domain.StrategyDirect:    NewDirect(deps),
			domain.StrategyRolling:   NewRolling(deps),
			domain.StrategyCanary:    NewCanary(deps),
			domain.StrategyBlueGreen: bg,
			domain.StrategyABTesting: NewABTesting(deps),
		},
	}
}

func (f *Factory) Create(strategy domain.StrategyType) (ports.DeploymentStrategy, error) {
	s, ok := f.strategies[strategy]
	if !ok {
		return nil, domain.NewValidationError("strategy", fmt.Sprintf("unknown strategy %q", strategy))
	}
	return s, nil
}

// BlueGreen exposes the shared blue-green instance for release/revert
// operations after a cutover.
func (f *Factory) BlueGreen() *BlueGreen {
	return f.blueGreen
}
