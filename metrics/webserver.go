package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/eventpix/media-archiver/common/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var srv *http.Server

func Init() {
	if !config.Get().Metrics.Enabled {
		logrus.Info("Metrics disabled")
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	address := net.JoinHostPort(config.Get().Metrics.BindAddress, strconv.Itoa(config.Get().Metrics.Port))
	srv = &http.Server{Addr: address, Handler: mux}
	go func() {
		logrus.WithField("address", address).Info("Started metrics listener at http://" + address + "/metrics")
		// A busy port must not take the export run down with it.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logrus.Error("Metrics listener failed: ", err)
		}
	}()
}

func Stop() {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Warn("Error stopping metrics listener: ", err)
	}
	srv = nil
}
