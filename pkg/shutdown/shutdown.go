package shutdown

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CreateGracefulShutdownChannel returns a channel that receives SIGINT and
// SIGTERM.
func CreateGracefulShutdownChannel() chan os.Signal {
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	return gracefulShutdown
}

// ListenForShutdown blocks until a signal arrives, runs the handler, waits
// the grace period for in-flight work, then returns.
func ListenForShutdown(
	gracefulShutdown chan os.Signal,
	done chan bool,
	handler func(),
	gracePeriod time.Duration,
	l *zap.Logger,
) {
	go func() {
		sig := <-gracefulShutdown
		l.Sugar().Infow("Received shutdown signal", zap.String("signal", sig.String()))

		handler()

		time.Sleep(gracePeriod)
		done <- true
	}()

	<-done
}
