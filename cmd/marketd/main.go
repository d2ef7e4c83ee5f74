package main

import (
	"encoding/json"
	_ "net/http/pprof"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/storemarket/market-core/cmd/common"
	"github.com/storemarket/market-core/cmd/marketd/service"
)

var (
	daemonName = "marketd"
	log        = logging.Logger(daemonName)
	v          = viper.New()
)

func init() {
	flags := []common.Flag{
		{Name: "http.addr", DefValue: ":8080", Description: "HTTP API listen address"},
		{Name: "metrics.addr", DefValue: ":9090", Description: "Prometheus listen address"},
		{Name: "repo.path", DefValue: "${HOME}/.marketd", Description: "Repo path"},
		{Name: "log-debug", DefValue: false, Description: "Enable debug level logs"},
		{Name: "log-json", DefValue: false, Description: "Enable structured JSON logging"},

		{Name: "escrow.account", DefValue: "escrow", Description: "Ledger account holding locked deposits"},
		{Name: "treasury.account", DefValue: "treasury", Description: "Ledger account receiving forfeited collateral"},
		{Name: "mint", DefValue: "", Description: "Seed the dev ledger, account=amount; repeatable", Repeatable: true},
	}

	common.ConfigureCLI(v, "MARKET", flags, rootCmd)
}

var rootCmd = &cobra.Command{
	Use:   daemonName,
	Short: "marketd runs a storage capacity marketplace",
	Long:  `marketd runs a storage capacity marketplace`,
	PersistentPreRun: func(c *cobra.Command, args []string) {
		common.ExpandEnvVars(v, v.AllSettings())
		err := common.ConfigureLogging(v, []string{
			daemonName,
			"marketd/service",
			"marketd/api",
			"marketd/market",
			"marketd/store",
			"events",
			"escrowmem",
		})
		common.CheckErrf("setting log levels: %v", err)
	},
	Run: func(c *cobra.Command, args []string) {
		settings, err := json.MarshalIndent(v.AllSettings(), "", "  ")
		common.CheckErr(err)
		log.Infof("loaded config: %s", string(settings))

		if err := common.SetupInstrumentation(v.GetString("metrics.addr")); err != nil {
			log.Fatalf("booting instrumentation: %s", err)
		}

		serviceConfig := service.Config{
			HTTPListenAddr: v.GetString("http.addr"),
			RepoPath:       v.GetString("repo.path"),

			EscrowAccount:   v.GetString("escrow.account"),
			TreasuryAccount: v.GetString("treasury.account"),
			Mints:           common.ParseStringSlice(v, "mint"),
		}
		serv, err := service.New(serviceConfig)
		common.CheckErr(err)

		log.Info("listening to requests...")

		common.HandleInterrupt(func() {
			if err := serv.Close(); err != nil {
				log.Errorf("closing service: %s", err)
			}
		})
	},
}

func main() {
	common.CheckErr(rootCmd.Execute())
}
