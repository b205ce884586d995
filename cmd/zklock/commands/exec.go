package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	zklocking "github.com/DataDog/zklock/cluster/zookeeper"
	"github.com/DataDog/zklock/lockevents"
	"github.com/DataDog/zklock/lockevents/datadog"
	"github.com/DataDog/zklock/lockmetrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- command [args...]",
	Short: "Run a command while holding the lock",
	Long: `Waits for the lock, runs the command, then releases the lock. The
command is stopped if the ZooKeeper session is lost while it runs. zklock
exits with the command's exit status.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().String("label", "", "Lock marker label (defaults to the hostname)")
	execCmd.Flags().Duration("wait-timeout", 0, "Give up waiting for the lock after this long (0 waits indefinitely)")
	execCmd.Flags().String("metrics-listen", "", "Serve Prometheus metrics on this address while running")
	execCmd.Flags().String("dd-api-key", "", "Datadog API key (enables lock events)")
	execCmd.Flags().String("dd-app-key", "", "Datadog app key")
	execCmd.Flags().String("dd-event-tags", "", "Comma-delimited list of Datadog event tags")
}

const waitDelay = 5 * time.Second

// execOptions holds exec parameters.
type execOptions struct {
	lock        zklocking.ZooKeeperLockConfig
	waitTimeout time.Duration
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
}

func runExec(cmd *cobra.Command, args []string) error {
	bootstrap(cmd)

	o := execOptions{
		lock:   lockConfig(cmd),
		stdin:  os.Stdin,
		stdout: cmd.OutOrStdout(),
		stderr: cmd.ErrOrStderr(),
	}

	o.lock.Label, _ = cmd.Flags().GetString("label")
	if o.lock.Label == "" {
		o.lock.Label = defaultLabel()
	}
	o.waitTimeout, _ = cmd.Flags().GetDuration("wait-timeout")

	var observers zklocking.Observers

	// Init Prometheus metrics.
	if addr, _ := cmd.Flags().GetString("metrics-listen"); addr != "" {
		reg := prometheus.NewRegistry()
		observers = append(observers, lockmetrics.New(reg, o.lock.Path))

		srvr := &http.Server{
			Addr:    addr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		defer srvr.Close()

		go func() {
			log.Printf("Metrics listener up: %s\n", addr)
			if err := srvr.ListenAndServe(); err != http.ErrServerClosed {
				log.Println(err)
			}
		}()
	}

	// Init the Datadog event writer.
	if apiKey, _ := cmd.Flags().GetString("dd-api-key"); apiKey != "" {
		appKey, _ := cmd.Flags().GetString("dd-app-key")
		h, err := datadog.NewHandler(&datadog.Config{
			APIKey: apiKey,
			AppKey: appKey,
			Host:   o.lock.Label,
		})
		if err != nil {
			return err
		}

		echan := make(chan *lockevents.Event, 100)
		done := make(chan struct{})
		go func() {
			lockevents.Writer(h, echan)
			close(done)
		}()
		// Flush pending events on exit.
		defer func() {
			close(echan)
			<-done
		}()

		t, _ := cmd.Flags().GetString("dd-event-tags")
		g := lockevents.NewEventGenerator(echan, "zklock", eventTags(t))
		observers = append(observers, lockevents.NewObserver(g, o.lock.Path, o.lock.Label))
	}

	if len(observers) > 0 {
		o.lock.Observer = observers
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execLocked(ctx, o, args)
}

// eventTags returns the event tag list for a
// comma delimited tag string.
func eventTags(s string) []string {
	tags := []string{"name:zklock"}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// execLocked acquires the lock, runs args and releases the lock. A non-zero
// command exit status is returned as an *exitError.
func execLocked(ctx context.Context, o execOptions, args []string) error {
	lock, err := zklocking.NewZooKeeperLockWithDialer(o.lock, dialer)
	if err != nil {
		return err
	}
	defer lock.Close()

	lockCtx := ctx
	if o.waitTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, o.waitTimeout)
		defer cancel()
	}

	if err := lock.Lock(lockCtx); err != nil {
		return fmt.Errorf("unable to acquire %s: %w", o.lock.Path, err)
	}

	log.Printf("Holding %s as %s\n", o.lock.Path, lock.Marker())

	// Stop the command if the lock is lost.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	go func() {
		select {
		case <-lock.Lost():
			fmt.Fprintf(o.stderr, "[zklock] lock %s lost; stopping command\n", o.lock.Path)
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	c := exec.CommandContext(runCtx, args[0], args[1:]...)
	c.Stdin = o.stdin
	c.Stdout = o.stdout
	c.Stderr = o.stderr
	// Don't wait on output held open by orphaned children once the command
	// is stopped.
	c.WaitDelay = waitDelay

	runErr := c.Run()
	cancelRun()

	if err := lock.Unlock(context.Background()); err != nil {
		return fmt.Errorf("unable to release %s: %w", o.lock.Path, err)
	}

	var ee *exec.ExitError
	switch {
	case runErr == nil:
		return nil
	case errors.As(runErr, &ee) && ee.ExitCode() > 0:
		return &exitError{code: ee.ExitCode()}
	default:
		return runErr
	}
}
