package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/kerb4/kerb4/pkg/principal"
)

var (
	clientName     string
	clientRealm    string
	clientPassword string
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage client principals",
}

var clientAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a client principal",
	RunE:  runClientAdd,
}

var clientListCmd = &cobra.Command{
	Use:   "list",
	Short: "List client principals",
	RunE:  runClientList,
}

func init() {
	clientAddCmd.Flags().StringVar(&clientName, "name", "", "client principal name (required)")
	clientAddCmd.Flags().StringVar(&clientRealm, "realm", "KERB4", "realm")
	clientAddCmd.Flags().StringVar(&clientPassword, "password", "", "password (prompted if omitted)")
	_ = clientAddCmd.MarkFlagRequired("name")

	clientCmd.AddCommand(clientAddCmd)
	clientCmd.AddCommand(clientListCmd)
}

func runClientAdd(_ *cobra.Command, _ []string) error {
	password := clientPassword
	if password == "" {
		prompt := promptui.Prompt{Label: "Password", Mask: '*'}
		result, err := prompt.Run()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		password = result
	}

	store, err := openStore()
	if err != nil {
		return err
	}

	p := principal.Principal{
		Name:   principal.Name{Primary: clientName, Realm: clientRealm},
		Kind:   principal.KindClient,
		Secret: password,
	}
	if err := store.Put(context.Background(), p); err != nil {
		return fmt.Errorf("add client principal: %w", err)
	}

	fmt.Printf("client principal %s added\n", p.Name.String())
	return nil
}

func runClientList(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	principals, err := store.List(context.Background(), principal.KindClient)
	if err != nil {
		return fmt.Errorf("list client principals: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Realm"})
	table.SetBorder(false)
	for _, p := range principals {
		table.Append([]string{p.Name.Primary, p.Name.Realm})
	}
	table.Render()
	return nil
}
