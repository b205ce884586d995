package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jamiealquiza/envy"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "zklock",
	Short: "Distributed exclusive locks backed by ZooKeeper",
	Long: `zklock serializes work across hosts. Each invocation enqueues an
ephemeral sequential znode under a shared lock path and proceeds once it
holds the lowest sequence number.`,
	SilenceUsage: true,
}

// exitError carries a process exit code.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	envy.ParseCobra(rootCmd, envy.CobraConfig{Prefix: "ZKLOCK", Persistent: true, Recursive: true})

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("zk-addr", "localhost:2181", "ZooKeeper connect string")
	rootCmd.PersistentFlags().String("lock-path", "/zklock/locks", "ZooKeeper lock path shared by all competing processes")
	rootCmd.PersistentFlags().Duration("connect-timeout", 30*time.Second, "Time to wait for a ZooKeeper session")
	rootCmd.PersistentFlags().Duration("session-timeout", 10*time.Second, "ZooKeeper session timeout")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log lock and session activity")
}
