package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/creatorwatch/internal/wbi"
	"github.com/spf13/cobra"
)

// signCmd signs a parameter set offline.
var signCmd = &cobra.Command{
	Use:   "sign [key=value ...]",
	Short: "Sign request parameters with a WBI key pair",
	Long: `Sign request parameters offline and print the intermediate values.

The wts timestamp is added unless the parameters already carry one. Values
are given unencoded; encoding is applied exactly as it is on the wire.

Example:
  creatorwatch sign --img-key 7cd084941338484aae1ad9425b84077c \
    --sub-key 4932caff0ff746eab6f01bf08b70ac45 \
    --wts 1702204169 foo=114 bar=514 zab=1919810`,
	RunE: runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().String("img-key", "", "img_key, 32 hex characters (required)")
	signCmd.Flags().String("sub-key", "", "sub_key, 32 hex characters (required)")
	signCmd.Flags().Int64("wts", 0, "unix timestamp to sign with (default now)")
	_ = signCmd.MarkFlagRequired("img-key")
	_ = signCmd.MarkFlagRequired("sub-key")
}

func runSign(cmd *cobra.Command, args []string) error {
	imgKey, _ := cmd.Flags().GetString("img-key")
	subKey, _ := cmd.Flags().GetString("sub-key")
	wts, _ := cmd.Flags().GetInt64("wts")

	params, err := parseParams(args)
	if err != nil {
		return err
	}
	if _, ok := params["wts"]; !ok {
		if wts == 0 {
			wts = time.Now().Unix()
		}
		params["wts"] = strconv.FormatInt(wts, 10)
	}

	signer, err := wbi.NewSigner(wbi.Keys{ImgKey: imgKey, SubKey: subKey})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mixin_key: %s\n", signer.MixinKey())
	fmt.Fprintf(out, "query:     %s\n", wbi.CanonicalQuery(params))
	fmt.Fprintf(out, "w_rid:     %s\n", signer.Signature(params))
	fmt.Fprintf(out, "signed:    %s\n", signer.Sign(params).Values().Encode())
	return nil
}

// parseParams converts key=value arguments into a parameter set.
func parseParams(args []string) (wbi.Params, error) {
	params := make(wbi.Params, len(args)+1)
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}
