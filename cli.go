package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevemurr/treestore/keypath"
	"github.com/stevemurr/treestore/storage"
	"github.com/stevemurr/treestore/value"
)

func init() {
	docCmd.AddCommand(
		docCommand("get <path>", "Print the value at a path", 1, docGet),
		docCommand("put <path> [json|-]", "Replace the value at a path", 2, docPut),
		docCommand("merge <path> [json|-]", "Overlay an object onto the value at a path", 2, docMerge),
		docCommand("append <path> [json|-]", "Add a value under a generated key", 2, docAppend),
		docCommand("delete <path>", "Remove the value at a path", 1, docDelete),
		docCommand("keys <path>", "List the child keys at a path", 1, docKeys),
		docCommand("list <path>", "Print the children at a path as an array", 1, docList),
	)
	blobCmd.AddCommand(
		blobCommand("get <path> [file|-]", "Copy a blob to a file or stdout", blobGet),
		blobCommand("put <path> [file|-]", "Store a file or stdin as a blob", blobPut),
		blobCommand("delete <path>", "Remove a blob", blobDelete),
	)
}

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read and modify documents directly against the configured store",
}

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Read and modify blobs directly against the configured store",
}

type docFunc func(ctx context.Context, env *environment, p keypath.Path, args []string) error

// docCommand builds a subcommand that takes a path plus up to extra-1
// further arguments.
func docCommand(use, short string, extra int, run docFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.RangeArgs(1, extra),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := keypath.Parse(args[0])
			if err != nil {
				return err
			}
			env, err := open()
			if err != nil {
				return err
			}
			defer env.close()
			return run(cmd.Context(), env, p, args[1:])
		},
	}
}

func blobCommand(use, short string, run docFunc) *cobra.Command {
	return docCommand(use, short, 2, run)
}

// input reads a JSON value from the argument, or stdin when it is "-" or
// missing.
func input(args []string) (value.Value, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data = []byte(args[0])
	}
	if err != nil {
		return value.Value{}, err
	}
	return value.ParseJSON(data)
}

func printValue(v value.Value) error {
	data, err := value.MarshalIndent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", data)
	return err
}

func docGet(ctx context.Context, env *environment, p keypath.Path, _ []string) error {
	v, err := env.docs.Get(ctx, p)
	if err != nil {
		return err
	}
	return printValue(v)
}

func docPut(ctx context.Context, env *environment, p keypath.Path, args []string) error {
	v, err := input(args)
	if err != nil {
		return err
	}
	return env.docs.Write(ctx, p, v)
}

func docMerge(ctx context.Context, env *environment, p keypath.Path, args []string) error {
	v, err := input(args)
	if err != nil {
		return err
	}
	return env.docs.Merge(ctx, p, v)
}

func docAppend(ctx context.Context, env *environment, p keypath.Path, args []string) error {
	v, err := input(args)
	if err != nil {
		return err
	}
	key, err := env.docs.Append(ctx, p, v)
	if err != nil {
		return err
	}
	fmt.Println(key)
	return nil
}

func docDelete(ctx context.Context, env *environment, p keypath.Path, _ []string) error {
	return env.docs.Delete(ctx, p)
}

func docKeys(ctx context.Context, env *environment, p keypath.Path, _ []string) error {
	keys, err := storage.ChildKeys(ctx, env.docs, p)
	if err != nil {
		return err
	}
	for key := range keys {
		fmt.Println(key)
	}
	return nil
}

func docList(ctx context.Context, env *environment, p keypath.Path, _ []string) error {
	items, err := env.docs.GetCollection(ctx, p)
	if err != nil {
		return err
	}
	return printValue(value.Array(storage.Collect(items)...))
}

func blobGet(ctx context.Context, env *environment, p keypath.Path, args []string) error {
	rc, err := env.blobs.Get(ctx, p)
	if err != nil {
		return err
	}
	defer rc.Close()
	var w io.Writer = os.Stdout
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err = io.Copy(w, rc)
	return err
}

func blobPut(ctx context.Context, env *environment, p keypath.Path, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return env.blobs.Write(ctx, p, r)
}

func blobDelete(ctx context.Context, env *environment, p keypath.Path, _ []string) error {
	return env.blobs.Delete(ctx, p)
}
