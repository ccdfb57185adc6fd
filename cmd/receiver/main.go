// Command receiver listens for one incoming file transfer, deliberately
// drops a configurable fraction of datagrams, and writes the reassembled
// file to a fixed output path, following cmd/dnsproxy/main.go's
// flag-parse-then-_main()-then-stackTracer-log shape.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/anissasoungpanya/reliudp/internal/config"
	"github.com/anissasoungpanya/reliudp/internal/metrics"
	"github.com/anissasoungpanya/reliudp/internal/receiver"
)

func main() {
	if err := _main(); err != nil {
		defer os.Exit(1)

		var st errors.StackTrace
		type stackTracer interface {
			StackTrace() errors.StackTrace
		}
		if e, ok := err.(stackTracer); ok {
			st = e.StackTrace()
		}
		glog.Errorf("%s%+v\n", err, st)
	}
}

func _main() error {
	var configFile string
	flag.StringVar(&configFile, "c", "", "path of optional tuning config file")
	flag.Parse()

	cfg := config.Default()
	if configFile != "" {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			return err
		}
	}

	lossPercent := cfg.LossPercent
	if args := flag.Args(); len(args) > 0 {
		p, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return errors.Wrapf(err, "invalid loss_percent %q", args[0])
		}
		lossPercent = p
	}
	if lossPercent < 0 || lossPercent > 100 {
		return errors.Errorf("loss_percent must be in [0,100], got %v", lossPercent)
	}

	laddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "resolving %s:%d", cfg.Host, cfg.Port)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errors.Wrap(err, "binding socket")
	}
	defer conn.Close()

	rec := metrics.NewRecorder()
	if cfg.MetricsAddr != "" {
		stop, err := metrics.Serve(cfg.MetricsAddr, rec)
		if err != nil {
			return err
		}
		defer stop()
	}

	glog.Infof("listening on %s, loss_percent=%v", laddr, lossPercent)

	r := receiver.New(conn, lossPercent/100.0, cfg.RTTDelay, rec)
	data := r.Run()

	if err := os.WriteFile(config.DefaultOutputFile, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", config.DefaultOutputFile)
	}

	glog.Infof("file transfer complete: %d bytes received, %d dropped", len(data), rec.Dropped())
	return nil
}
