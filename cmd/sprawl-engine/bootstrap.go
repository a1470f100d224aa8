package main

import (
	"fmt"
	"time"

	"github.com/deadcoast/sprawl-engine/flownet"
	"github.com/deadcoast/sprawl-engine/registry"
	"github.com/deadcoast/sprawl-engine/types"
)

// demoChainID is the chain the binary kicks off on startup so connected
// clients immediately see events flowing.
const demoChainID = "ore-processing"

// seedDemoContent registers a small mining economy: three recipes chained
// into an ore-processing line and one converter per stage.
func seedDemoContent(reg *registry.Registry, flow *flownet.Manager) error {
	recipes := []types.Recipe{
		{
			ID:             "smelt-ore",
			Inputs:         []types.ResourceAmount{{Type: "ore", Amount: 10}},
			Outputs:        []types.ResourceAmount{{Type: "ingot", Amount: 5}},
			ProcessingTime: 10 * time.Second,
			BaseEfficiency: 1.0,
			EnergyCost:     4,
		},
		{
			ID:             "refine-ingot",
			Inputs:         []types.ResourceAmount{{Type: "ingot", Amount: 5}},
			Outputs:        []types.ResourceAmount{{Type: "plate", Amount: 2}},
			ProcessingTime: 15 * time.Second,
			BaseEfficiency: 0.9,
			EnergyCost:     6,
		},
		{
			ID:             "assemble-frame",
			Inputs:         []types.ResourceAmount{{Type: "plate", Amount: 2}},
			Outputs:        []types.ResourceAmount{{Type: "frame", Amount: 1}},
			ProcessingTime: 20 * time.Second,
			BaseEfficiency: 1.1,
			EnergyCost:     10,
		},
	}
	for _, r := range recipes {
		if !reg.RegisterRecipe(r) {
			return fmt.Errorf("register recipe %s", r.ID)
		}
	}

	if !reg.RegisterChain(types.Chain{
		ID:    demoChainID,
		Steps: []string{"smelt-ore", "refine-ingot", "assemble-frame"},
	}) {
		return fmt.Errorf("register chain %s", demoChainID)
	}

	nodes := []types.ConverterNode{
		{
			ID:                 "smelter-1",
			SupportedRecipeIDs: []string{"smelt-ore"},
			Efficiency:         1.0,
			Configuration:      types.ConverterConfiguration{MaxConcurrentProcesses: 2},
			Resources:          map[types.ResourceType]float64{"ore": 100},
		},
		{
			ID:                 "refinery-1",
			SupportedRecipeIDs: []string{"refine-ingot"},
			Efficiency:         1.2,
			Configuration: types.ConverterConfiguration{
				MaxConcurrentProcesses: 1,
				EfficiencyModifiers:    map[string]float64{"refine-ingot": 1.1},
			},
		},
		{
			ID:                 "assembler-1",
			SupportedRecipeIDs: []string{"assemble-frame"},
			Efficiency:         1.0,
			Configuration:      types.ConverterConfiguration{MaxConcurrentProcesses: 1},
		},
	}
	for _, n := range nodes {
		if err := flow.RegisterNode(n); err != nil {
			return fmt.Errorf("register node %s: %w", n.ID, err)
		}
	}

	return nil
}
