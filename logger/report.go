package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	dropped  int64
}

type componentStat struct {
	warns  int64
	errors int64
}

var (
	ticksIngested   int64
	ordersSubmitted int64
	ordersFilled    int64
	channels        sync.Map // map[string]*channelStat
	components      sync.Map // map[string]*componentStat
)

func recordWarn(component string) {
	v, _ := components.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).warns, 1)
}

func recordError(component string) {
	v, _ := components.LoadOrStore(component, &componentStat{})
	atomic.AddInt64(&v.(*componentStat).errors, 1)
}

// IncrementTickIngested counts one parsed market-data update.
func IncrementTickIngested() {
	atomic.AddInt64(&ticksIngested, 1)
}

// IncrementOrderSubmitted counts one order accepted by the OMS.
func IncrementOrderSubmitted() {
	atomic.AddInt64(&ordersSubmitted, 1)
}

// IncrementOrderFilled counts one simulated execution reaching Filled.
func IncrementOrderFilled() {
	atomic.AddInt64(&ordersFilled, 1)
}

// RecordChannelMessage counts one message delivered on a named channel.
func RecordChannelMessage(name string) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	atomic.AddInt64(&v.(*channelStat).messages, 1)
}

// RecordChannelDrop counts one message dropped on a named channel.
func RecordChannelDrop(name string) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	atomic.AddInt64(&v.(*channelStat).dropped, 1)
}

// StartReport begins periodic logging of system and channel statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"dropped":  atomic.LoadInt64(&cs.dropped),
		}
		return true
	})

	componentData := map[string]map[string]int64{}
	components.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*componentStat)
		componentData[name] = map[string]int64{
			"warns":  atomic.LoadInt64(&cs.warns),
			"errors": atomic.LoadInt64(&cs.errors),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := int64(0)
	if memStats != nil {
		memMB = int64(memStats.Used) / 1024 / 1024
	}

	ticks := atomic.LoadInt64(&ticksIngested)
	submitted := atomic.LoadInt64(&ordersSubmitted)
	filled := atomic.LoadInt64(&ordersFilled)

	log.WithComponent("report").WithFields(Fields{
		"ticks_ingested":   ticks,
		"orders_submitted": submitted,
		"orders_filled":    filled,
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        memMB,
		"channels":         channelData,
		"components":       componentData,
	}).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("Term-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("Term-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memMB))},
		{MetricName: aws.String("Term-TicksIngested"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(ticks))},
		{MetricName: aws.String("Term-OrdersSubmitted"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(submitted))},
		{MetricName: aws.String("Term-OrdersFilled"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(filled))},
	}

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Term-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Term-ChannelDrops"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["dropped"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
