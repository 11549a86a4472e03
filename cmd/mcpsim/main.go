// Command mcpsim drives the runtime through a handful of main-tick
// iterations on the host platform, standing in for a device's tick loop
// (spec §5 "On platforms with OS threads (the host test platform), a
// single foreground thread drives the tick").
package main

import (
	"context"
	"fmt"

	"mcpruntime/automation"
	"mcpruntime/eventbus"
	"mcpruntime/hal"
	"mcpruntime/mcpsystem"
	"mcpruntime/tools"
)

func main() {
	ctx := context.Background()

	sim := hal.NewHostSim(1 << 16)
	sim.RegisterActuator("fan", func(ctx context.Context, command, paramsJSON string) (string, error) {
		fmt.Println("actuator fan:", command, paramsJSON)
		return `{"ok":true}`, nil
	})

	sys := mcpsystem.New()
	ctx, err := sys.Init(ctx, mcpsystem.Config{
		MaxTools:           16,
		MaxRules:           16,
		MaxSessions:        8,
		PlatformAvailBytes: 1 << 20,
		Board:              "esp32",
		HAL:                sim,
		SensorActuator:     sim,
	})
	if err != nil {
		panic(err)
	}
	if err := sys.ServerStart(); err != nil {
		panic(err)
	}

	if err := sys.Tools().RegisterNative("ping", func(paramsJSON string) tools.Result {
		return tools.Ok(map[string]any{"pong": true})
	}, ""); err != nil {
		panic(err)
	}

	sessionID, err := sys.SessionCreate(0, "stdio")
	if err != nil {
		panic(err)
	}
	fmt.Println("session:", sessionID)

	result := sys.ToolExecute(`{"tool":"ping","params":{}}`)
	fmt.Println("ping ->", result.ResultJSON)

	ruleID, err := sys.AutomationCreateRule(`{
		"name": "overheat-shutdown",
		"triggers": [
			{"type": "condition", "sensor": "temp", "operator": ">=", "expected": 80, "pollIntervalMs": 0}
		],
		"actions": [
			{"type": "actuator", "targetId": "fan", "command": "on", "params": {"speed": 100}},
			{"type": "notification", "message": "overheat condition observed", "level": "warn"}
		]
	}`)
	if err != nil {
		panic(err)
	}
	fmt.Println("rule:", ruleID)

	if _, err := sys.EventBus().Subscribe(eventbus.TypeSensor, eventbus.SourceAll, func(ctx context.Context, evt eventbus.Event, userData any) {
		fmt.Println("observed sensor event from", evt.Source)
	}, nil); err != nil {
		panic(err)
	}

	readings := []float64{55, 62, 81, 90}
	var nowMs int64
	for _, temp := range readings {
		sim.SetSensor("temp", hal.SensorValue{Kind: hal.KindNumber, Number: temp, TimestampMs: nowMs})
		if err := sys.EventBus().Publish(eventbus.Event{Type: eventbus.TypeSensor, Source: "temp", TimestampMs: nowMs}); err != nil {
			panic(err)
		}

		results, err := sys.Process(ctx, nowMs, 0)
		if err != nil {
			panic(err)
		}
		for _, r := range results {
			printRunResult(r)
		}
		nowMs += 1000
	}

	if err := sys.SessionClose(sessionID); err != nil {
		panic(err)
	}
	if err := sys.Deinit(); err != nil {
		panic(err)
	}
}

func printRunResult(r automation.RunResult) {
	fmt.Printf("rule %s fired: %d actions run, %d failed\n", r.RuleID, r.ActionsRun, r.ActionsFailed)
}
