package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/datapipe/internal/filter/builtin"
)

// FiltersOptions holds flags for the filters command.
type FiltersOptions struct {
	*RootOptions
	Params bool
}

// FilterInfo describes one registered filter.
type FilterInfo struct {
	Name       string      `json:"name"`
	HumanName  string      `json:"human_name"`
	UUID       string      `json:"uuid"`
	Parameters []ParamInfo `json:"parameters,omitempty"`
}

// ParamInfo describes one filter parameter.
type ParamInfo struct {
	Name      string `json:"name"`
	HumanName string `json:"human_name"`
	Kind      string `json:"kind"`
}

type filterList []FilterInfo

func (l filterList) String() string {
	var b strings.Builder
	for i, f := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%-28s %s  %s", f.Name, f.UUID, f.HumanName)
		for _, p := range f.Parameters {
			fmt.Fprintf(&b, "\n    %-14s %-10s %s", p.Name, p.Kind, p.HumanName)
		}
	}
	return b.String()
}

// NewFiltersCommand creates the filters command.
func NewFiltersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FiltersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "filters",
		Short:         "List the registered filters",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.formatter(cmd).ok(listFilters(opts.Params))
		},
	}

	cmd.Flags().BoolVar(&opts.Params, "params", false, "include parameters")

	return cmd
}

func listFilters(params bool) filterList {
	reg := builtin.NewRegistry()
	out := make(filterList, 0, reg.Len())
	for _, f := range reg.List() {
		info := FilterInfo{Name: f.Name(), HumanName: f.HumanName(), UUID: f.UUID().String()}
		if params {
			for _, p := range f.Parameters() {
				info.Parameters = append(info.Parameters, ParamInfo{Name: p.Name, HumanName: p.HumanName, Kind: p.Kind.String()})
			}
		}
		out = append(out, info)
	}
	return out
}
