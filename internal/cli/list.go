package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m4mayz/MauNgekos-sub000/internal/listings"
	"github.com/m4mayz/MauNgekos-sub000/internal/models"
)

type listOptions struct {
	status     string
	owner      string
	kind       string
	priceMin   int64
	priceMax   int64
	available  bool
	facilities []string
	force      bool
}

var listOpts listOptions

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List listings, from the remote store when online and the cache otherwise",
	Long: `List approved listings. Use --status or --owner to list other sets, or
the filter flags to narrow the approved listings.

When online, results come from the remote store and are written back to
the cache. When offline or when the remote read fails, the cache answers.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var showCmd = &cobra.Command{
	Use:   "show <listing-id>",
	Short: "Show a single listing",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	f := listCmd.Flags()
	f.StringVar(&listOpts.status, "status", "", "List listings with this status (pending, approved, rejected)")
	f.StringVar(&listOpts.owner, "owner", "", "List listings owned by this user")
	f.StringVar(&listOpts.kind, "type", "", "Only listings of this type (putra, putri, campur)")
	f.Int64Var(&listOpts.priceMin, "min-price", 0, "Only listings whose price range reaches this amount")
	f.Int64Var(&listOpts.priceMax, "max-price", 0, "Only listings whose price range starts at or below this amount")
	f.BoolVar(&listOpts.available, "available", false, "Only listings with free rooms")
	f.StringSliceVar(&listOpts.facilities, "facility", nil, "Required facility (repeatable)")
	f.BoolVarP(&listOpts.force, "force", "f", false, "Read from the remote store even if offline")

}

// filter returns the listing filter and whether any filter flag was set.
func (o listOptions) filter() (models.ListingFilter, bool) {
	f := models.ListingFilter{
		PriceMin:      o.priceMin,
		PriceMax:      o.priceMax,
		Type:          models.ListingType(o.kind),
		AvailableOnly: o.available,
		Facilities:    o.facilities,
	}
	set := f.PriceMin > 0 || f.PriceMax > 0 || f.Type != "" || f.AvailableOnly || len(f.Facilities) > 0
	return f, set
}

func (o listOptions) fetch(ctx context.Context, svc *listings.Service) (string, []*models.Listing, error) {
	switch {
	case o.status != "":
		ls, err := svc.GetListingsByStatus(ctx, models.ListingStatus(o.status), o.force)
		return fmt.Sprintf("LISTINGS: %s", o.status), ls, err
	case o.owner != "":
		ls, err := svc.GetListingsByOwner(ctx, o.owner, o.force)
		return fmt.Sprintf("LISTINGS OWNED BY %s", o.owner), ls, err
	}
	if f, ok := o.filter(); ok {
		ls, err := svc.GetFilteredListings(ctx, f, o.force)
		return "MATCHING LISTINGS", ls, err
	}
	ls, err := svc.GetApprovedListings(ctx, o.force)
	return "APPROVED LISTINGS", ls, err
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("list", err)
	}
	defer a.close()

	title, ls, err := listOpts.fetch(cmd.Context(), a.listings)
	if err != nil {
		return trackCLIError("list", err)
	}
	renderListings(os.Stdout, title, ls)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return trackCLIError("show", err)
	}
	defer a.close()

	l, err := a.listings.GetListing(cmd.Context(), args[0])
	if err != nil {
		return trackCLIError("show", fmt.Errorf("listing %s: %w", args[0], err))
	}
	renderListing(os.Stdout, l)
	return nil
}
