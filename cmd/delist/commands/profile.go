package commands

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/delist-sh/delist/internal/vault"
	"github.com/delist-sh/delist/pkg/models"
)

func NewProfileCommand(engineVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage encrypted consumer profiles",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a profile from the given fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createProfile(engineVersion)
		},
	}
	create.Flags().String("first-name", "", "first name")
	create.Flags().String("last-name", "", "last name")
	create.Flags().String("middle-name", "", "middle name")
	create.Flags().String("email", "", "contact email for opt-out forms")
	create.Flags().String("phone", "", "phone number")
	create.Flags().String("city", "", "city")
	create.Flags().String("state", "", "state code, e.g. CA")
	create.Flags().String("zip", "", "zip code")
	create.Flags().String("age", "", "age")
	for _, name := range []string{"first-name", "last-name", "middle-name", "email", "phone", "city", "state", "zip", "age"} {
		_ = viper.BindPFlag("profile."+name, create.Flags().Lookup(name))
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List profile ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProfiles(engineVersion)
		},
	}

	remove := &cobra.Command{
		Use:   "delete [profile-id]",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return deleteProfile(engineVersion, args[0])
		},
	}

	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new vault key",
		Long:  "Prints a fresh base64 vault key. Store it safely; losing it makes every profile unreadable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(base64.StdEncoding.EncodeToString(key))
			return nil
		},
	}

	cmd.AddCommand(create, list, remove, keygen)
	return cmd
}

func createProfile(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	fields := map[string]string{
		models.FieldFirstName:  viper.GetString("profile.first-name"),
		models.FieldLastName:   viper.GetString("profile.last-name"),
		models.FieldMiddleName: viper.GetString("profile.middle-name"),
		models.FieldEmail:      viper.GetString("profile.email"),
		models.FieldPhone:      viper.GetString("profile.phone"),
		models.FieldCity:       viper.GetString("profile.city"),
		models.FieldState:      viper.GetString("profile.state"),
		models.FieldZip:        viper.GetString("profile.zip"),
		models.FieldAge:        viper.GetString("profile.age"),
	}
	if fields[models.FieldFirstName] == "" || fields[models.FieldLastName] == "" {
		return fmt.Errorf("--first-name and --last-name are required")
	}

	id, err := app.Vault.CreateProfile(fields)
	if err != nil {
		return err
	}
	fmt.Printf("profile created: %s\n", id)
	return nil
}

func listProfiles(engineVersion string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	ids, err := app.Vault.ProfileIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No profiles stored.")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func deleteProfile(engineVersion, id string) error {
	app, err := OpenApp(engineVersion)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Vault.DeleteProfile(id); err != nil {
		return err
	}
	fmt.Printf("profile %s deleted\n", id)
	return nil
}
