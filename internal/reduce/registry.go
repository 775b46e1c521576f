package reduce

import (
	"github.com/samber/lo"

	"github.com/born-ml/reducebench/internal/device"
)

var registry = []Strategy{
	cpuStrategy{},
	&atomicStrategy{kind: Atomic, kernel: device.KernelTileAtomic, perTile: 1, vectorWidth: 1},
	&atomicStrategy{kind: Tile, kernel: device.KernelTileAtomic, perTile: maxWorkgroupsPerTile, vectorWidth: 1},
	&atomicStrategy{kind: Vector, kernel: device.KernelVec4Atomic, perTile: maxVectorTiles, vectorWidth: 4},
	recursiveStrategy{},
	&atomicStrategy{kind: Subgroup, kernel: device.KernelSubgroupAtomic, perTile: 1, vectorWidth: 1, useSubgroups: true},
	&atomicStrategy{kind: SubgroupTile, kernel: device.KernelSubgroupStride, perTile: maxWorkgroupsPerTile, vectorWidth: 1, useSubgroups: true},
}

// Registry returns every strategy in benchmark order. The first entry is the
// CPU fold.
func Registry() []Strategy {
	return append([]Strategy(nil), registry...)
}

// Available returns the strategies caps can run. Subgroup strategies are
// dropped when the device lacks subgroup reduction.
func Available(caps device.Capabilities) []Strategy {
	return lo.Filter(registry, func(s Strategy, _ int) bool {
		return caps.SubgroupReduction || !s.RequiresSubgroups()
	})
}

// Lookup finds a strategy by name.
func Lookup(name string) (Strategy, bool) {
	return lo.Find(registry, func(s Strategy) bool {
		return s.Name() == name
	})
}

// Names returns the names of strategies.
func Names(strategies []Strategy) []string {
	return lo.Map(strategies, func(s Strategy, _ int) string {
		return s.Name()
	})
}
