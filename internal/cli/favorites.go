package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

var favoritesCmd = &cobra.Command{
	Use:   "favorites <user-id>",
	Short: "List, save or remove a user's favorite listings",
	Long: `List a user's favorite listings from the cache, then reconcile them with
the remote store when online.

Saving or removing a favorite while offline queues the change for the next
drain.`,
	Args: cobra.ExactArgs(1),
	RunE: runFavorites,
}

var favoritesSaveCmd = &cobra.Command{
	Use:   "save <user-id> <listing-id>",
	Short: "Save a listing to a user's favorites",
	Args:  cobra.ExactArgs(2),
	RunE:  runFavoriteToggle(true),
}

var favoritesRemoveCmd = &cobra.Command{
	Use:   "remove <user-id> <listing-id>",
	Short: "Remove a listing from a user's favorites",
	Args:  cobra.ExactArgs(2),
	RunE:  runFavoriteToggle(false),
}

func init() {
	favoritesCmd.AddCommand(favoritesSaveCmd)
	favoritesCmd.AddCommand(favoritesRemoveCmd)
}

func runFavorites(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("favorites", err)
	}
	defer a.close()

	var fresh []*models.Listing
	cached, err := a.listings.GetFavorites(cmd.Context(), args[0], func(ls []*models.Listing) {
		fresh = ls
	})
	if err != nil {
		return trackCLIError("favorites", err)
	}

	// The reconciled list arrives in the background; wait for it so the
	// output reflects the remote store when online.
	a.listings.Wait()
	if fresh != nil {
		cached = fresh
	}
	renderListings(os.Stdout, fmt.Sprintf("FAVORITES OF %s", args[0]), cached)
	return nil
}

func runFavoriteToggle(save bool) func(cmd *cobra.Command, args []string) error {
	name := "favorites remove"
	if save {
		name = "favorites save"
	}
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return trackCLIError(name, err)
		}
		defer a.close()

		userID, listingID := args[0], args[1]
		if save {
			err = a.listings.SaveFavorite(cmd.Context(), userID, listingID)
		} else {
			err = a.listings.UnsaveFavorite(cmd.Context(), userID, listingID)
		}
		if err != nil {
			return trackCLIError(name, err)
		}
		a.listings.Wait()

		pending, err := a.db.CountPendingMutations()
		if err != nil {
			return trackCLIError(name, fmt.Errorf("count pending mutations: %w", err))
		}
		verb := "Removed"
		if save {
			verb = "Saved"
		}
		fmt.Printf("%s %s for %s (%d writes queued).\n", verb, listingID, userID, pending)
		return nil
	}
}
