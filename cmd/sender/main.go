// Command sender reads a file into memory and transfers it to a receiver
// over the reliable-UDP protocol, following cmd/dnsproxy/main.go's
// flag-parse-then-_main()-then-stackTracer-log shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/anissasoungpanya/reliudp/internal/config"
	"github.com/anissasoungpanya/reliudp/internal/metrics"
	"github.com/anissasoungpanya/reliudp/internal/sender"
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

	args := flag.Args()
	if len(args) < 1 {
		return errors.New("usage: sender <filename> [host] [port]")
	}
	filename := args[0]
	if len(args) > 1 {
		cfg.Host = args[1]
	}
	if len(args) > 2 {
		port, err := strconv.Atoi(args[2])
		if err != nil {
			return errors.Wrapf(err, "invalid port %q", args[2])
		}
		cfg.Port = port
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrapf(err, "reading %s", filename)
	}
	glog.Infof("file read: %d bytes", len(data))

	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "resolving %s:%d", cfg.Host, cfg.Port)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return errors.Wrap(err, "opening socket")
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

	snd := sender.New(conn, raddr, data, cfg.Timeout, cfg.InitialSsthresh, rec)
	stats, err := snd.Run(context.Background())
	if err != nil {
		return errors.Wrap(err, "transfer failed")
	}

	glog.Infof("transfer complete: %d bytes in %s, %d retransmissions (%d timeout, %d fast)",
		stats.Bytes, stats.Elapsed, stats.TotalRetransmissions, stats.TimeoutRetransmits, stats.FastRetransmits)

	lossSuffix := os.Getenv("LOSS_PERCENT")
	if lossSuffix == "" {
		lossSuffix = "10"
	}
	prefix := fmt.Sprintf("%s_loss_%s", cfg.MetricsPrefix, lossSuffix)
	if err := rec.WriteCwndTable(prefix + "_cwnd.txt"); err != nil {
		return err
	}
	if err := rec.WriteRetransmissionTable(prefix + "_retransmissions.txt"); err != nil {
		return err
	}

	return nil
}
