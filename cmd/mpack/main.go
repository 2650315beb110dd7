// mpack - MessagePack inspection CLI
//
// Usage:
//
//	mpack decode [-c] [-s] [file]   Convert MessagePack to JSON
//	mpack peek [file]               Classify the next value
//	mpack skip N [file]             Skip N values, decode the next
//	mpack version                   Print version info
//
// If no file is given, reads from stdin.
package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Neumenon/mpack/mpack"
)

const version = "0.1.0"

var log = logrus.New()

func main() {
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)

	root := &cobra.Command{
		Use:           "mpack",
		Short:         "Inspect MessagePack streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(decodeCommand(), peekCommand(), skipCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// openInput returns the stream named by args, or stdin.
func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	return f, errors.Wrap(err, "open input")
}

func decodeCommand() *cobra.Command {
	var (
		compact bool
		slurp   bool
	)
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Convert MessagePack to JSON on stdout",
		Long: `Read MessagePack data and write the equivalent JSON to stdout.

Binary payloads appear as base64 strings and extension values as
{"ext": code, "data": base64} objects, since JSON has no native form
for either. Non-string map keys are rendered with their decimal or
quoted text form.

With -s, reads a sequence of concatenated values and outputs them as
a JSON array.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args)
			if err != nil {
				return err
			}
			defer in.Close()

			r := mpack.NewReader(in)
			if !slurp {
				v, err := mpack.UnpackAnyFrom(r)
				if err != nil {
					return err
				}
				return writeJSON(os.Stdout, normalizeValue(v), compact)
			}
			var items []any
			for {
				if _, err := mpack.PeekFormat(r); err != nil {
					break
				}
				v, err := mpack.UnpackAnyFrom(r)
				if err != nil {
					return errors.Wrapf(err, "decode item %d", len(items))
				}
				items = append(items, normalizeValue(v))
			}
			return writeJSON(os.Stdout, items, compact)
		},
	}
	cmd.Flags().BoolVarP(&compact, "compact", "c", false, "compact single-line output")
	cmd.Flags().BoolVarP(&slurp, "slurp", "s", false, "decode a value sequence as a JSON array")
	return cmd
}

func peekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "peek [file]",
		Short: "Classify the next value without decoding it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args)
			if err != nil {
				return err
			}
			defer in.Close()

			r := mpack.NewReader(in)
			f, err := mpack.PeekFormat(r)
			if err != nil {
				return err
			}
			fmt.Println(f.Name())
			return nil
		},
	}
}

func skipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip N [file]",
		Short: "Skip N values, then decode the next as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("skip count %q is not a non-negative integer", args[0])
			}
			in, err := openInput(args[1:])
			if err != nil {
				return err
			}
			defer in.Close()

			r := mpack.NewReader(in)
			for i := 0; i < n; i++ {
				if err := mpack.Skip(r); err != nil {
					return errors.Wrapf(err, "skip value %d", i)
				}
			}
			v, err := mpack.UnpackAnyFrom(r)
			if err != nil {
				return err
			}
			return writeJSON(os.Stdout, normalizeValue(v), false)
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mpack %s\n", version)
		},
	}
}

// normalizeValue converts a generically decoded value into
// JSON-encodable types.
func normalizeValue(v any) any {
	switch tv := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(tv)
	case mpack.ExtensionData:
		return map[string]any{
			"ext":  tv.Code,
			"data": base64.StdEncoding.EncodeToString(tv.Data),
		}
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = normalizeValue(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[keyString(k)] = normalizeValue(e)
		}
		return out
	}
	return v
}

func keyString(k any) string {
	switch kv := k.(type) {
	case string:
		return kv
	case int64:
		return strconv.FormatInt(kv, 10)
	case uint64:
		return strconv.FormatUint(kv, 10)
	}
	return fmt.Sprint(k)
}

func writeJSON(w io.Writer, v any, compact bool) error {
	enc := json.NewEncoder(w)
	if !compact {
		enc.SetIndent("", "  ")
	}
	return errors.Wrap(enc.Encode(v), "encode JSON")
}
