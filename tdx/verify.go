package tdx

import (
	"encoding/hex"
	"fmt"

	"github.com/google/go-tdx-guest/abi"
	checkconfig "github.com/google/go-tdx-guest/proto/checkconfig"
	pb "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/validate"
	"github.com/google/go-tdx-guest/verify"
)

// Intel's QE vendor id.
const intelQeVendorID = "939a7233f79c4ca9940a0db3957f0607"

// Policy holds the quote checks beyond report data.
type Policy struct {
	MinimumQeSvn  uint32
	MinimumPceSvn uint32
	// TdAttributes is the expected hex TD attributes; debug TDs fail it.
	TdAttributes string
	CheckCRL     bool
}

// DefaultPolicy requires a production TD signed by Intel's QE.
func DefaultPolicy() Policy {
	return Policy{TdAttributes: "0000001000000000", CheckCRL: true}
}

func (p Policy) config(reportData []byte) (*checkconfig.Config, error) {
	vendor, err := hex.DecodeString(intelQeVendorID)
	if err != nil {
		return nil, err
	}
	attrs, err := hex.DecodeString(p.TdAttributes)
	if err != nil {
		return nil, fmt.Errorf("td attributes: %w", err)
	}

	return &checkconfig.Config{
		RootOfTrust: &checkconfig.RootOfTrust{
			CheckCrl:      p.CheckCRL,
			GetCollateral: true,
		},
		Policy: &checkconfig.Policy{
			HeaderPolicy: &checkconfig.HeaderPolicy{
				MinimumQeSvn:  p.MinimumQeSvn,
				MinimumPceSvn: p.MinimumPceSvn,
				QeVendorId:    vendor,
			},
			TdQuoteBodyPolicy: &checkconfig.TDQuoteBodyPolicy{
				TdAttributes: attrs,
				ReportData:   reportData,
			},
		},
	}, nil
}

// VerifyDCAP checks a TDX v4 quote's signature chain and policy and returns
// MRTD and RTMR0-3.
func VerifyDCAP(quote []byte, expectedReportData []byte, policy Policy) (map[int][]byte, error) {
	anyQuote, err := abi.QuoteToProto(quote)
	if err != nil {
		return nil, fmt.Errorf("parsing quote: %w", err)
	}
	q, ok := anyQuote.(*pb.QuoteV4)
	if !ok {
		return nil, fmt.Errorf("unsupported quote type %T", anyQuote)
	}

	cfg, err := policy.config(expectedReportData)
	if err != nil {
		return nil, err
	}

	options, err := verify.RootOfTrustToOptions(cfg.RootOfTrust)
	if err != nil {
		return nil, fmt.Errorf("converting root of trust to options: %w", err)
	}
	if err := verify.TdxQuote(q, options); err != nil {
		return nil, fmt.Errorf("verifying TDX quote: %w", err)
	}

	opts, err := validate.PolicyToOptions(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("converting policy to options: %w", err)
	}
	if err := validate.TdxQuote(q, opts); err != nil {
		return nil, fmt.Errorf("validating TDX quote: %w", err)
	}

	body := q.GetTdQuoteBody()
	rtmrs := body.GetRtmrs()
	if len(rtmrs) < 4 {
		return nil, fmt.Errorf("quote has %d RTMRs", len(rtmrs))
	}
	return map[int][]byte{
		RegisterMRTD:  body.GetMrTd(),
		RegisterRTMR0: rtmrs[0],
		RegisterRTMR1: rtmrs[1],
		RegisterRTMR2: rtmrs[2],
		RegisterRTMR3: rtmrs[3],
	}, nil
}
