package commands

import (
	"io"
	"log"
	"os"

	"github.com/DataDog/zklock/cluster"
	zklocking "github.com/DataDog/zklock/cluster/zookeeper"

	"github.com/spf13/cobra"
)

// dialer opens coordination store sessions. A nil
// dialer dials ZooKeeper.
var dialer cluster.Dialer

// bootstrap applies global flags.
func bootstrap(cmd *cobra.Command) {
	// Suppress lock and ZooKeeper client noise.
	if v, _ := cmd.Flags().GetBool("verbose"); !v {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
	}
}

// lockConfig returns a ZooKeeperLockConfig from
// the global flags.
func lockConfig(cmd *cobra.Command) zklocking.ZooKeeperLockConfig {
	addr, _ := cmd.Flags().GetString("zk-addr")
	path, _ := cmd.Flags().GetString("lock-path")
	ct, _ := cmd.Flags().GetDuration("connect-timeout")
	st, _ := cmd.Flags().GetDuration("session-timeout")

	return zklocking.ZooKeeperLockConfig{
		Address:        addr,
		Path:           path,
		ConnectTimeout: ct,
		SessionTimeout: st,
	}
}

// defaultLabel returns the hostname, falling
// back to the default marker label.
func defaultLabel() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return zklocking.DefaultLabel
	}
	return h
}
