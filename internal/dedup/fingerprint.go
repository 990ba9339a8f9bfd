package dedup

import (
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/incident-service/internal/domain"
)

// Kind tells single-incident submissions apart from multi-fault batches.
type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

const fingerprintVersion = "v1"

// SingleInput holds the fields that identify one incident submission.
type SingleInput struct {
	Series       domain.Series
	Exchange     string
	Nodes        []string
	Stakeholders []string
	FaultType    string
	Equipment    string
	Domain       string
}

// BatchItem holds the key attributes of one fault in a batch.
type BatchItem struct {
	Node      string `json:"node"`
	FaultType string `json:"fault_type"`
	Equipment string `json:"equipment"`
}

// BatchInput holds the fields that identify a multi-fault submission.
type BatchInput struct {
	Series          domain.Series
	Exchange        string
	Stakeholders    []string
	TicketGenerator string
	Items           []BatchItem
}

// Submission is the normalized form of a creation request plus its
// fingerprint. The coarse attributes are what the durable tier matches on.
type Submission struct {
	Kind         Kind
	Series       domain.Series
	Exchange     string
	Nodes        []string
	FaultType    string
	Stakeholders []string
	ItemCount    int
	Fingerprint  string
}

type singleCanonical struct {
	Version      string        `json:"v"`
	Kind         Kind          `json:"kind"`
	Series       domain.Series `json:"series"`
	Exchange     string        `json:"exchange"`
	Nodes        []string      `json:"nodes"`
	Stakeholders []string      `json:"stakeholders"`
	FaultType    string        `json:"fault_type"`
	Equipment    string        `json:"equipment"`
	Domain       string        `json:"domain"`
}

type batchCanonical struct {
	Version         string        `json:"v"`
	Kind            Kind          `json:"kind"`
	Series          domain.Series `json:"series"`
	Exchange        string        `json:"exchange"`
	Stakeholders    []string      `json:"stakeholders"`
	TicketGenerator string        `json:"ticket_generator"`
	ItemCount       int           `json:"item_count"`
	Items           []BatchItem   `json:"items"`
}

// NewSingleSubmission normalizes a single-incident request.
func NewSingleSubmission(in SingleInput) Submission {
	canonical := singleCanonical{
		Version:      fingerprintVersion,
		Kind:         KindSingle,
		Series:       in.Series,
		Exchange:     strings.TrimSpace(in.Exchange),
		Nodes:        NormalizeSet(in.Nodes),
		Stakeholders: NormalizeSet(in.Stakeholders),
		FaultType:    strings.TrimSpace(in.FaultType),
		Equipment:    strings.TrimSpace(in.Equipment),
		Domain:       strings.TrimSpace(in.Domain),
	}
	return Submission{
		Kind:         KindSingle,
		Series:       canonical.Series,
		Exchange:     canonical.Exchange,
		Nodes:        canonical.Nodes,
		FaultType:    canonical.FaultType,
		Stakeholders: canonical.Stakeholders,
		ItemCount:    1,
		Fingerprint:  digest(canonical),
	}
}

// NewBatchSubmission normalizes a multi-fault request. Items keep their
// order because results are returned in input order.
func NewBatchSubmission(in BatchInput) Submission {
	items := make([]BatchItem, len(in.Items))
	for i, item := range in.Items {
		items[i] = BatchItem{
			Node:      strings.TrimSpace(item.Node),
			FaultType: strings.TrimSpace(item.FaultType),
			Equipment: strings.TrimSpace(item.Equipment),
		}
	}
	canonical := batchCanonical{
		Version:         fingerprintVersion,
		Kind:            KindBatch,
		Series:          in.Series,
		Exchange:        strings.TrimSpace(in.Exchange),
		Stakeholders:    NormalizeSet(in.Stakeholders),
		TicketGenerator: strings.TrimSpace(in.TicketGenerator),
		ItemCount:       len(items),
		Items:           items,
	}
	return Submission{
		Kind:         KindBatch,
		Series:       canonical.Series,
		Exchange:     canonical.Exchange,
		Stakeholders: canonical.Stakeholders,
		ItemCount:    canonical.ItemCount,
		Fingerprint:  digest(canonical),
	}
}

// NormalizeSet trims, drops blanks and duplicates, and sorts values so that
// list order never changes a fingerprint.
func NormalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b []string) bool {
	a, b = NormalizeSet(a), NormalizeSet(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func digest(v any) string {
	// Marshal of plain structs and string slices cannot fail.
	payload, _ := json.Marshal(v)
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
