package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forest6511/skm/internal/cli"
	"github.com/forest6511/skm/pkg/keydir"
)

// List command flags
var (
	listFormat string
	listFilter string
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", formatTable, "Output format: table, json, yaml, names")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Only show keys whose name matches this glob")
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List SSH keys",
	Long: `List the SSH key pairs in the key directory.

Examples:
  skm list
  skm list --filter 'github*'
  skm list -f json`,
	Args: cobra.NoArgs,
	RunE: executeList,
}

// keyItem is the serialised form of a key for json and yaml output.
type keyItem struct {
	Name        string    `json:"name" yaml:"name"`
	Type        string    `json:"type,omitempty" yaml:"type,omitempty"`
	Bits        *int      `json:"bits,omitempty" yaml:"bits,omitempty"`
	Status      string    `json:"status" yaml:"status"`
	Fingerprint string    `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Comment     string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	PrivatePath string    `json:"private_path" yaml:"private_path"`
	PublicPath  string    `json:"public_path" yaml:"public_path"`
	Modified    time.Time `json:"modified" yaml:"modified"`
	Size        int64     `json:"size" yaml:"size"`
}

func newKeyItem(k *keydir.Key) keyItem {
	item := keyItem{
		Name:        k.Name,
		Bits:        k.Bits,
		Status:      k.Status.String(),
		Fingerprint: k.Fingerprint,
		Comment:     k.Comment,
		PrivatePath: k.PrivatePath,
		PublicPath:  k.PublicPath,
		Modified:    k.ModTime.UTC(),
		Size:        k.Size,
	}
	if k.Type.Valid() {
		item.Type = k.Type.String()
	}
	return item
}

// filterKeys keeps the keys whose name matches pattern.
func filterKeys(all []*keydir.Key, pattern string) ([]*keydir.Key, error) {
	names := make([]string, len(all))
	for i, k := range all {
		names[i] = k.Name
	}
	matched, err := cli.Filter(pattern, names)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(matched))
	for _, n := range matched {
		keep[n] = true
	}
	out := make([]*keydir.Key, 0, len(matched))
	for _, k := range all {
		if keep[k.Name] {
			out = append(out, k)
		}
	}
	return out, nil
}

func executeList(cmd *cobra.Command, _ []string) error {
	if err := validateFormat(listFormat, formatTable, formatJSON, formatYAML, formatNames); err != nil {
		return err
	}

	scanned, err := keys.Scan()
	if err != nil {
		return err
	}
	found, err := filterKeys(scanned, listFilter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch listFormat {
	case formatNames:
		for _, k := range found {
			fmt.Fprintln(out, k.Name)
		}
		return nil

	case formatJSON, formatYAML:
		items := make([]keyItem, 0, len(found))
		for _, k := range found {
			items = append(items, newKeyItem(k))
		}
		if listFormat == formatJSON {
			return writeJSON(out, items)
		}
		return writeYAML(out, items)
	}

	if len(found) == 0 {
		fmt.Fprintln(out, "No SSH keys found.")
		return nil
	}

	w := newTable(out)
	fmt.Fprintln(w, "NAME\tTYPE\tBITS\tSTATUS\tMODIFIED\tCOMMENT")
	for _, k := range found {
		typ, bits := "-", "-"
		if k.Type.Valid() {
			typ = k.Type.String()
		}
		if k.Bits != nil {
			bits = strconv.Itoa(*k.Bits)
		}
		modified := "-"
		if !k.ModTime.IsZero() {
			modified = humanize.Time(k.ModTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.Name, typ, bits, k.Status, modified, orDash(k.Comment))
	}
	return w.Flush()
}
