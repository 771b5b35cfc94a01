package signatures

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/Notation/gscanner/internal/util"
)

const FourByteEndpoint = "https://www.4byte.directory/api/v1/signatures/"

// FourByte 4byte.directory查询
type FourByte struct {
	Endpoint string
}

func NewFourByte() *FourByte {
	return &FourByte{Endpoint: FourByteEndpoint}
}

type fourByteResponse struct {
	Results []struct {
		TextSignature string `json:"text_signature"`
	} `json:"results"`
}

func (f *FourByte) Lookup(ctx context.Context, selector string) ([]string, error) {
	var resp fourByteResponse
	query := f.Endpoint + "?hex_signature=" + url.QueryEscape(normalize(selector))
	if err := util.GetJSON(ctx, query, &resp); err != nil {
		return nil, errors.Wrap(err, "GetJSON")
	}
	result := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		result = append(result, r.TextSignature)
	}
	return result, nil
}
