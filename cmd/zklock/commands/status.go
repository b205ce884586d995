package commands

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/DataDog/zklock/cluster"
	zklocking "github.com/DataDog/zklock/cluster/zookeeper"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the lock holder and queued waiters",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	bootstrap(cmd)

	cfg := lockConfig(cmd)

	s, err := zklocking.OpenSession(zklocking.SessionConfig{
		Dialer:         dialer,
		Endpoint:       cfg.Address,
		ConnectTimeout: cfg.ConnectTimeout,
		SessionTimeout: cfg.SessionTimeout,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	queue, err := s.Queue(cfg.Path)
	// A lock path that was never used has no queue.
	if err != nil && !errors.Is(err, cluster.ErrNoNode) {
		return err
	}

	printQueue(cmd.OutOrStdout(), cfg.Path, queue)

	return nil
}

func printQueue(w io.Writer, lockPath string, queue zklocking.LockEntries) {
	ids := queue.IDs()
	if len(ids) == 0 {
		fmt.Fprintf(w, "%s: unlocked\n", lockPath)
		return
	}

	fmt.Fprintf(w, "%s: %d queued\n", lockPath, len(ids))
	for _, id := range ids {
		pos, err := queue.Position(id)
		if err != nil {
			continue
		}
		p, err := queue.LockPath(id)
		if err != nil {
			continue
		}

		state := "waiting"
		if pos == 0 {
			state = "held"
		}
		fmt.Fprintf(w, "  %d %s %s (%s)\n", pos, markerLabel(p), p, state)
	}
}

// markerLabel returns the label portion of a "<label>-<token>-<seq>"
// marker path.
func markerLabel(p string) string {
	name := path.Base(p)
	for i := 0; i < 2; i++ {
		idx := strings.LastIndex(name, "-")
		if idx == -1 {
			return name
		}
		name = name[:idx]
	}
	return name
}
