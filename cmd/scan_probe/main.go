package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"tri-arb-go/config"
	"tri-arb-go/gateway"
	"tri-arb-go/infrastructure/logger"
	"tri-arb-go/infrastructure/monitor"
	"tri-arb-go/internal/engine"
	"tri-arb-go/internal/exchange"
	"tri-arb-go/internal/store"
)

// scan_probe 连接指定交易所采集一段时间行情，执行一次扫描后输出 JSON。
func main() {
	exchanges := flag.String("exchanges", "binance", "交易所列表，逗号分隔")
	collect := flag.Duration("collect", 5*time.Second, "采集时长")
	fee := flag.Float64("fee", 0.10, "每腿手续费（百分比）")
	minProfit := flag.Float64("min", 0, "最小费后收益（百分比）")
	limit := flag.Int("limit", 0, "每个币的邻居上限，0 使用默认值 100，负数表示不限")
	verbose := flag.Bool("v", false, "输出连接器日志")
	flag.Parse()

	lvl := "error"
	if *verbose {
		lvl = "info"
	}
	lg, err := logger.New(logger.Config{Level: lvl, Outputs: []string{"stderr"}, Format: "console"})
	if err != nil {
		log.Fatalf("创建 logger 失败: %v", err)
	}
	defer lg.Close()

	mon := monitor.New(monitor.DefaultConfig())
	snap := store.New(nil)

	ctx, cancel := context.WithTimeout(context.Background(), *collect)
	defer cancel()

	var names []string
	for _, name := range strings.Split(*exchanges, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		proto, err := gateway.New(name, gateway.Options{HTTPClient: gateway.NewDefaultHTTPClient()})
		if err != nil {
			log.Fatalf("%v", err)
		}
		names = append(names, proto.Name())
		conn := exchange.New(proto, snap, exchange.DefaultOptions(), lg, mon)
		if err := conn.Start(ctx); err != nil {
			log.Fatalf("启动 %s 失败: %v", proto.Name(), err)
		}
		defer conn.Stop()
	}

	<-ctx.Done()

	eng, err := engine.New(config.ScanConfig{
		FeePerLegPct:          *fee,
		NeighborLimit:         100,
		MinProfitAfterFeesPct: *minProfit,
	}, engine.Components{Store: snap, Logger: lg, Monitor: mon})
	if err != nil {
		log.Fatalf("%v", err)
	}
	res, err := eng.RunScan(engine.ScanRequest{Exchanges: names, NeighborLimit: *limit})
	if err != nil {
		log.Fatalf("扫描失败: %v", err)
	}

	enc := sonnet.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("%v", err)
	}
}
