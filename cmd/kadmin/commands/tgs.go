package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kerb4/kerb4/pkg/principal"
)

var (
	tgsName        string
	tgsRealm       string
	tgsSecret      string
	tgsTGTLifetime int
	tgsSTLifetime  int
)

var tgsCmd = &cobra.Command{
	Use:   "tgs",
	Short: "Manage the ticket-granting service principal",
}

var tgsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add the ticket-granting service principal",
	RunE:  runTGSAdd,
}

var tgsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ticket-granting service principals",
	RunE:  runTGSList,
}

func init() {
	tgsAddCmd.Flags().StringVar(&tgsName, "name", "", "TGS principal name (required)")
	tgsAddCmd.Flags().StringVar(&tgsRealm, "realm", "KERB4", "realm")
	tgsAddCmd.Flags().StringVar(&tgsSecret, "secret", "", "shared secret with the AS (required)")
	tgsAddCmd.Flags().IntVar(&tgsTGTLifetime, "default-tgt-lifetime", 10, "default TGT lifetime in minutes")
	tgsAddCmd.Flags().IntVar(&tgsSTLifetime, "default-st-lifetime", 5, "default service ticket lifetime in minutes")
	_ = tgsAddCmd.MarkFlagRequired("name")
	_ = tgsAddCmd.MarkFlagRequired("secret")

	tgsCmd.AddCommand(tgsAddCmd)
	tgsCmd.AddCommand(tgsListCmd)
}

func runTGSAdd(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	p := principal.Principal{
		Name:                      principal.Name{Primary: tgsName, Realm: tgsRealm},
		Kind:                      principal.KindTGS,
		Secret:                    tgsSecret,
		DefaultTGTLifetimeMinutes: tgsTGTLifetime,
		DefaultSTLifetimeMinutes:  tgsSTLifetime,
	}
	if err := store.Put(context.Background(), p); err != nil {
		return fmt.Errorf("add TGS principal: %w", err)
	}

	fmt.Printf("TGS principal %s added (default TGT lifetime %dm, default ST lifetime %dm)\n", p.Name.String(), tgsTGTLifetime, tgsSTLifetime)
	return nil
}

func runTGSList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	principals, err := store.List(context.Background(), principal.KindTGS)
	if err != nil {
		return fmt.Errorf("list TGS principals: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Realm", "TGT Lifetime (min)", "ST Lifetime (min)"})
	table.SetBorder(false)
	for _, p := range principals {
		table.Append([]string{p.Name.Primary, p.Name.Realm, fmt.Sprintf("%d", p.DefaultTGTLifetimeMinutes), fmt.Sprintf("%d", p.DefaultSTLifetimeMinutes)})
	}
	table.Render()
	return nil
}
