package orchestration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/backend"
	"github.com/TurboJessadakorn/drive-through-realtime-agent/core/order"
)

// toolOrder fixes the declaration order of the tool descriptors sent
// in the session configuration.
var toolOrder = []string{
	"take_order",
	"remove_order",
	"get_menu_details",
	"summarize_order",
	"finalize_order",
}

type takeOrderArgs struct {
	Order    string `json:"order"    jsonschema:"enum=burger,enum=fries,enum=nuggets,enum=coke,description=The customer's order in natural language"`
	Quantity int    `json:"quantity" jsonschema:"description=The quantity of the ordered item,default=1"`
}

type removeOrderArgs struct {
	Order    string `json:"order"              jsonschema:"description=The name of the item to remove from the order"`
	Quantity int    `json:"quantity,omitempty" jsonschema:"description=The quantity of the item to remove"`
}

type menuDetailsArgs struct {
	Menu string `json:"menu" jsonschema:"enum=burger,enum=fries,enum=nuggets,enum=coke,description=The name of the menu to get details for"`
}

type noArgs struct{}

// functionResult is the JSON payload sent back as function-call
// output. The optional fields reproduce the per-operation shapes:
// order mutations carry the affected item, menu lookups carry details
// or a recoverable error string.
type functionResult struct {
	Message     string          `json:"message"`
	OrderItem   *order.LineItem `json:"orderItem,omitempty"`
	MenuDetails map[string]any  `json:"menuDetails,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// orderTools is the fixed capability set announced to the agent. Menu
// validation errors come back verbatim so the agent can explain them;
// every other failure collapses into an opaque string that leaks
// nothing about internals.
func orderTools(o *Orchestrator) []tool {
	return []tool{
		newTool("take_order", "Records a customer's order", "Could not process order",
			func(ctx context.Context, args takeOrderArgs) any {
				quantity := args.Quantity
				if quantity < 1 {
					quantity = 1
				}

				confirmation, err := o.backend.PlaceOrder(ctx, args.Order, quantity)
				if err != nil {
					menuErr := &backend.MenuError{}
					if errors.As(err, &menuErr) {
						return fmt.Sprintf("Error: %s", menuErr.Reason)
					}
					logger.WarnContext(ctx, "failed to place order", "error", err)
					return "Could not process order"
				}

				item, err := o.ledger.Add(confirmation.Name, confirmation.Quantity, confirmation.PriceCents)
				if err != nil {
					logger.WarnContext(ctx, "failed to record order line", "error", err)
					return "Could not process order"
				}
				o.presentOrder()

				return functionResult{
					Message:   fmt.Sprintf("Added %d x %s to order.", confirmation.Quantity, confirmation.Name),
					OrderItem: &item,
				}
			}),

		newTool("remove_order", "Removes a selected item from the customer's order", "Could not remove item from order",
			func(_ context.Context, args removeOrderArgs) any {
				quantity := args.Quantity
				if quantity < 1 {
					// No quantity means take the whole row off.
					quantity = math.MaxInt32
				}

				result, ok := o.ledger.Reduce(args.Order, quantity)
				if !ok {
					return functionResult{
						Message: fmt.Sprintf("Item '%s' not found in current order.", args.Order),
					}
				}
				o.presentOrder()

				if result.Removed {
					return functionResult{
						Message:   fmt.Sprintf("Removed all of %s from the order.", result.Item.Name),
						OrderItem: &result.Item,
					}
				}
				return functionResult{
					Message:   fmt.Sprintf("Reduced quantity of %s by %d.", result.Item.Name, args.Quantity),
					OrderItem: &result.Item,
				}
			}),

		newTool("get_menu_details", "Fetches details about a specific menu", "Could not fetch menu details",
			func(ctx context.Context, args menuDetailsArgs) any {
				details, err := o.backend.MenuDetails(ctx, args.Menu)
				if err != nil {
					menuErr := &backend.MenuError{}
					if errors.As(err, &menuErr) {
						// The failure is data the agent may relay, not
						// an error of the dispatch itself.
						return functionResult{
							Message: "Failed to retrieve menu details.",
							Error:   menuErr.Reason,
						}
					}
					logger.WarnContext(ctx, "failed to fetch menu details", "error", err)
					return "Could not fetch menu details"
				}

				return functionResult{
					Message:     "Menu details retrieved successfully.",
					MenuDetails: details,
				}
			}),

		newTool("summarize_order",
			"Summarizes the current order, listing all items and total cost. Only call this function when the user explicitly requests an order summary.",
			"Could not summarize order",
			func(context.Context, noArgs) any {
				return functionResult{Message: o.ledger.Summary()}
			}),

		newTool("finalize_order", "Finalizes the order when the customer is ready to checkout", "Could not finalize order",
			func(context.Context, noArgs) any {
				snapshot := o.ledger.Snapshot()
				if len(snapshot.Items) == 0 {
					return functionResult{Message: "No items in order to finalize."}
				}

				lines := make([]string, 0, len(snapshot.Items))
				for _, item := range snapshot.Items {
					lines = append(lines, fmt.Sprintf("%d x %s", item.Quantity, item.Name))
				}

				// Finalization is advisory: the ledger stays intact and
				// clearing remains an explicit user action.
				return functionResult{
					Message: fmt.Sprintf("Your order has been finalized: %s. Total: $%s. Please proceed to payment.",
						strings.Join(lines, ", "), order.FormatCents(snapshot.TotalCents)),
				}
			}),
	}
}
