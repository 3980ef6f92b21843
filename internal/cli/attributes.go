package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fastdata/cepbridge/internal/models"
)

var attributesCmd = &cobra.Command{
	Use:     "attributes",
	Aliases: []string{"attrs", "attribute"},
	Short:   "Monitored attribute management",
	Long:    "Bind context attributes to CEP statements and manage their subscription state",
}

var attributesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List monitored attributes",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		attrs, err := adminClient(cmd).ListAttributes(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list attributes: %w", err)
		}

		if ok, err := p.encode(attrs); ok {
			return err
		}
		if len(attrs) == 0 {
			info(p.w, "No attributes monitored")
			return nil
		}

		t := newTable("Entity Type", "Entity ID Pattern", "Attribute", "Statement", "State", "Created")
		for _, a := range attrs {
			t.addRow(a.EntityType, a.EntityIDPattern, a.AttributeName, a.StatementID, string(a.State),
				a.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		t.render(p.w)
		return nil
	},
}

var attributesRegisterCmd = &cobra.Command{
	Use:     "register",
	Short:   "Monitor an attribute for a statement",
	Example: `  cepctl attributes register --type Room --id 'Room.*' --attr temperature --statement hot-rooms`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}
		statement, _ := cmd.Flags().GetString("statement")

		attr, err := adminClient(cmd).RegisterAttribute(cmd.Context(), identityFromFlags(cmd), statement)
		if err != nil {
			return fmt.Errorf("failed to register attribute: %w", err)
		}

		if ok, err := p.encode(attr); ok {
			return err
		}
		success(p.w, "Attribute registered: %s -> %s (%s)", attr.AttributeIdentity, attr.StatementID, attr.State)
		return nil
	},
}

var attributesUnregisterCmd = &cobra.Command{
	Use:   "unregister",
	Short: "Stop monitoring an attribute",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := identityFromFlags(cmd)
		if err := adminClient(cmd).UnregisterAttribute(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to unregister attribute: %w", err)
		}
		success(cmd.OutOrStdout(), "Attribute unregistered: %s", id)
		return nil
	},
}

var attributesActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Mark a pending attribute as active",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		attr, err := adminClient(cmd).ActivateAttribute(cmd.Context(), identityFromFlags(cmd))
		if err != nil {
			return fmt.Errorf("failed to activate attribute: %w", err)
		}

		if ok, err := p.encode(attr); ok {
			return err
		}
		success(p.w, "Attribute active: %s", attr.AttributeIdentity)
		return nil
	},
}

var attributesLookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Show a monitored attribute",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPrinter(cmd)
		if err != nil {
			return err
		}

		attr, err := adminClient(cmd).LookupAttribute(cmd.Context(), identityFromFlags(cmd))
		if err != nil {
			return fmt.Errorf("failed to look up attribute: %w", err)
		}

		if ok, err := p.encode(attr); ok {
			return err
		}
		info(p.w, "Attribute: %s", attr.AttributeIdentity)
		info(p.w, "Statement: %s", attr.StatementID)
		info(p.w, "State: %s", attr.State)
		info(p.w, "Created: %s", attr.CreatedAt.Format("2006-01-02 15:04:05"))
		if attr.ActivatedAt != nil {
			info(p.w, "Activated: %s", attr.ActivatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func identityFromFlags(cmd *cobra.Command) models.AttributeIdentity {
	entityType, _ := cmd.Flags().GetString("type")
	pattern, _ := cmd.Flags().GetString("id")
	attribute, _ := cmd.Flags().GetString("attr")
	return models.AttributeIdentity{EntityType: entityType, EntityIDPattern: pattern, AttributeName: attribute}
}

func addIdentityFlags(c *cobra.Command) {
	c.Flags().String("type", "", "entity type")
	c.Flags().String("id", "", "entity id or anchored regular expression")
	c.Flags().String("attr", "", "attribute name")
	c.MarkFlagRequired("type")
	c.MarkFlagRequired("id")
	c.MarkFlagRequired("attr")
}

func init() {
	for _, c := range []*cobra.Command{attributesRegisterCmd, attributesUnregisterCmd, attributesActivateCmd, attributesLookupCmd} {
		addIdentityFlags(c)
	}
	attributesRegisterCmd.Flags().String("statement", "", "statement the attribute feeds")
	attributesRegisterCmd.MarkFlagRequired("statement")

	attributesCmd.AddCommand(attributesListCmd)
	attributesCmd.AddCommand(attributesRegisterCmd)
	attributesCmd.AddCommand(attributesUnregisterCmd)
	attributesCmd.AddCommand(attributesActivateCmd)
	attributesCmd.AddCommand(attributesLookupCmd)
}
