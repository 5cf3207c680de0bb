package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"runtime"
	"time"

	"github.com/talonecs/talon/ecs"
)

const (
	componentCount = 5
	systemCount    = 4
)

type Position struct{ X, Y float32 }
type Velocity struct{ DX, DY float32 }
type Health struct{ Current, Max int }
type Decay struct{ Rate float32 }
type Tag struct{ Value int }

func buildFactory() *ecs.ComponentFactory {
	f := ecs.NewComponentFactory()
	ecs.RegisterComponent[Position](f)
	ecs.RegisterComponent[Velocity](f)
	ecs.RegisterComponent[Health](f)
	ecs.RegisterComponent[Decay](f)
	ecs.RegisterComponent[Tag](f)
	f.Build()
	return f
}

type movementSystem struct {
	Entities ecs.Filter[struct {
		Position *Position
		Velocity *Velocity `ecs:"readonly"`
	}]
}

func (s *movementSystem) Update(dt float64) {
	s.Entities.ForEach(func(_ ecs.Entity, item struct {
		Position *Position
		Velocity *Velocity `ecs:"readonly"`
	}) bool {
		item.Position.X += item.Velocity.DX * float32(dt)
		item.Position.Y += item.Velocity.DY * float32(dt)
		return true
	})
}

type decaySystem struct {
	Entities ecs.Filter[struct {
		Health *Health
		Decay  *Decay `ecs:"readonly"`
	}]
	Remover ecs.Remover[Health]
}

func (s *decaySystem) Update(dt float64) {
	s.Entities.ForEach(func(e ecs.Entity, item struct {
		Health *Health
		Decay  *Decay `ecs:"readonly"`
	}) bool {
		item.Health.Current -= int(item.Decay.Rate * float32(dt))
		if item.Health.Current <= 0 {
			s.Remover.Remove(e)
		}
		return true
	})
}

type spawnSystem struct {
	Adder ecs.Adder[Tag]
	Add   ecs.EntityAdder
	tick  int
}

func (s *spawnSystem) Update(dt float64) {
	s.tick++
	if s.tick%30 != 0 {
		return
	}
	e := s.Add.Add()
	s.Adder.Add(e).Value = s.tick
}

type tagScanSystem struct {
	Entities ecs.Filter[struct {
		Tag *Tag `ecs:"readonly"`
	}]
	seen int
}

func (s *tagScanSystem) Update(dt float64) {
	s.seen = s.Entities.Len()
}

func spawnRandomEntity(storage *ecs.Storage, numComponents int) {
	e := storage.AddEntity()
	choices := []func(){
		func() { ecs.AddComponent[Position](storage, e) },
		func() { p := ecs.AddComponent[Velocity](storage, e); p.DX, p.DY = rand.Float32(), rand.Float32() },
		func() {
			h := ecs.AddComponent[Health](storage, e)
			h.Max = 100
			h.Current = 100
		},
		func() { ecs.AddComponent[Decay](storage, e).Rate = rand.Float32() * 2 },
		func() { ecs.AddComponent[Tag](storage, e).Value = int(e.RawID) },
	}
	rand.Shuffle(len(choices), func(i, j int) { choices[i], choices[j] = choices[j], choices[i] })
	if numComponents > len(choices) {
		numComponents = len(choices)
	}
	for i := 0; i < numComponents; i++ {
		choices[i]()
	}
}

func main() {
	duration := flag.Duration("duration", 10*time.Second, "The total duration the test should run for.")
	entityCount := flag.Int("entities", 10000, "The initial number of entities to create.")
	gcPauseMetrics := flag.Bool("gc-pause-metrics", false, "Enable detailed GC pause metrics in the report.")
	flag.Parse()

	log.Println("Starting ECS stress test...")

	factory := buildFactory()
	storage := ecs.NewStorage(factory)
	scheduler := ecs.NewScheduler(storage, ecs.SchedulerConfig{MaxConcurrent: runtime.GOMAXPROCS(0)})

	scheduler.Register("movement", &movementSystem{}, ecs.SystemOptions{})
	scheduler.Register("decay", &decaySystem{}, ecs.SystemOptions{})
	scheduler.Register("spawn", &spawnSystem{}, ecs.SystemOptions{})
	scheduler.Register("tag_scan", &tagScanSystem{}, ecs.SystemOptions{})

	log.Printf("Populating storage with %d entities...\n", *entityCount)
	for i := 0; i < *entityCount; i++ {
		numComponents := rand.Intn(5) + 1
		spawnRandomEntity(storage, numComponents)
	}
	log.Println("Population complete.")

	report := &Report{
		Duration:       *duration,
		Entities:       *entityCount,
		Components:     componentCount,
		Systems:        systemCount,
		GCPauseMetrics: *gcPauseMetrics,
		UpdateTime: Stats{
			Samples: make([]time.Duration, 0),
		},
	}

	runtime.ReadMemStats(&report.MemStatsStart)

	log.Printf("Running simulation for %s...\n", *duration)
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	startTime := time.Now()
	var totalUpdates int64
	lastFrameTime := time.Now()

Loop:
	for {
		select {
		case <-ctx.Done():
			break Loop
		default:
			deltaTime := time.Since(lastFrameTime)
			lastFrameTime = time.Now()

			updateStart := time.Now()
			scheduler.Tick(float64(deltaTime) / float64(time.Second))
			updateDuration := time.Since(updateStart)

			report.UpdateTime.Samples = append(report.UpdateTime.Samples, updateDuration)
			totalUpdates++
		}
	}

	report.TotalTime = time.Since(startTime)
	report.TotalUpdates = totalUpdates
	report.UpdateTime.Finalize()
	runtime.ReadMemStats(&report.MemStatsEnd)

	log.Println("Simulation finished.")

	fmt.Println("\n\n--- Stress Test Report ---")
	if err := report.Generate(os.Stdout); err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}
	fmt.Println("--- End of Report ---")

	log.Println("Stress test complete.")
}
