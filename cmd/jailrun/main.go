// Command jailrun executes programs inside Linux namespace jails with
// cgroup resource limits, restricted filesystem views and seccomp
// policies, either once (run) or per accepted connection (listen).
package main

import (
	goflag "flag"
	"os"

	"github.com/spf13/cobra"

	"k8s.io/klog/v2"
)

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()

	root := &cobra.Command{
		Use:           "jailrun",
		Short:         "run programs inside Linux namespace jails",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")

	root.AddCommand(newRunCmd(), newListenCmd())

	if err := root.Execute(); err != nil {
		klog.Errorf("%v", err)
		klog.Flush()
		os.Exit(1)
	}
}
