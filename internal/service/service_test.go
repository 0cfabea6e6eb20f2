package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/vilaca/flatrest/internal/api"
	"github.com/vilaca/flatrest/internal/domain"
	"github.com/vilaca/flatrest/internal/endpoint"
	"github.com/vilaca/flatrest/internal/parser"
)

const root = "https://rest.example.org"

// routeFetcher is a test double for api.Fetcher serving canned bodies by URL.
// Unknown URLs answer 404.
type routeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	fail   map[string]int
	urls   []string
}

func (f *routeFetcher) Fetch(_ context.Context, url string) (*domain.RawResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if status, ok := f.fail[url]; ok {
		return nil, &domain.RemoteRequestError{StatusCode: status, URL: url}
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, &domain.RemoteRequestError{StatusCode: http.StatusNotFound, URL: url}
	}
	return &domain.RawResponse{URL: url, StatusCode: http.StatusOK, Body: body}, nil
}

func newTestService(t *testing.T, f api.Fetcher, opts parser.Options) *Service {
	t.Helper()
	b, err := endpoint.New(root, 0)
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	s, err := NewService(Config{Builder: b, Fetcher: f, Parsers: opts})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("hsa:%d", i+1)
	}
	return out
}

func entriesBody(list []string) string {
	var sb strings.Builder
	for _, id := range list {
		fmt.Fprintf(&sb, "ENTRY       %s  CDS  T01001\nNAME        gene %s\n///\n", strings.TrimPrefix(id, "hsa:"), id)
	}
	return sb.String()
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	b, _ := endpoint.New(root, 0)

	if _, err := NewService(Config{Fetcher: &routeFetcher{}}); err == nil {
		t.Error("expected error without builder")
	}
	if _, err := NewService(Config{Builder: b}); err == nil {
		t.Error("expected error without fetcher")
	}
}

// TestList_Pathway tests the list operation end to end over HTTP.
// Follows AAA (Arrange, Act, Assert) pattern.
func TestList_Pathway(t *testing.T) {
	// Arrange
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/list/pathway" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "path:map00010\tGlycolysis\npath:map00020\tTCA cycle\n")
	}))
	defer server.Close()

	b, _ := endpoint.New(server.URL, 0)
	s, err := NewService(Config{Builder: b, Fetcher: api.NewTransport(api.ClientConfig{}, server.Client(), nil)})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	// Act
	got, err := s.List(context.Background(), "pathway")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := domain.ListMapping{"path:map00010": "Glycolysis", "path:map00020": "TCA cycle"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestList_EmptyBody(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{root + "/list/hsa": "\n"}}
	s := newTestService(t, f, parser.Options{})

	got, err := s.List(context.Background(), "hsa")

	if err != nil || got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil mapping, got %v (%v)", got, err)
	}
}

func TestList_InvalidResource(t *testing.T) {
	f := &routeFetcher{}
	s := newTestService(t, f, parser.Options{})

	_, err := s.List(context.Background(), "  ")

	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected invalid query, got %v", err)
	}
	if len(f.urls) != 0 {
		t.Errorf("no request should be issued, got %v", f.urls)
	}
}

func TestListTable_KeepsColumns(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{
		root + "/list/organism": "T01001\thsa\tHomo sapiens\tEukaryotes\n",
	}}
	s := newTestService(t, f, parser.Options{})

	got, err := s.ListTable(context.Background(), "organism")

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	want := domain.Matrix{{"T01001", "hsa", "Homo sapiens", "Eukaryotes"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestInfo_ReturnsText(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{root + "/info/kegg": "kegg             Kyoto Encyclopedia\n"}}
	s := newTestService(t, f, parser.Options{})

	got, err := s.Info(context.Background(), "kegg")

	if err != nil || !strings.HasPrefix(got, "kegg") {
		t.Errorf("unexpected info %q (%v)", got, err)
	}
}

func TestFind_ReplacesWhitespace(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{
		root + "/find/compound/C7H10O5/formula": "cpd:C00493\tC7H10O5\n",
	}}
	s := newTestService(t, f, parser.Options{})

	got, err := s.Find(context.Background(), "compound", "C7H10O5", "formula")
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got["cpd:C00493"] != "C7H10O5" {
		t.Errorf("unexpected result %v", got)
	}

	f.bodies[root+"/find/genes/shiga+toxin"] = "eco:b0001\tstx\n"
	table, err := s.FindTable(context.Background(), "genes", "shiga toxin", "")
	if err != nil || len(table) != 1 {
		t.Errorf("unexpected table %v (%v)", table, err)
	}
}

func TestFind_EmptyQuery(t *testing.T) {
	s := newTestService(t, &routeFetcher{}, parser.Options{})

	_, err := s.Find(context.Background(), "genes", " ", "")

	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected invalid query, got %v", err)
	}
}

// TestGet_BatchesAndConcatenates tests that 25 ids are fetched as 10+10+5.
func TestGet_BatchesAndConcatenates(t *testing.T) {
	// Arrange
	all := ids(25)
	f := &routeFetcher{bodies: map[string]string{}}
	for _, group := range [][]string{all[:10], all[10:20], all[20:]} {
		f.bodies[root+"/get/"+strings.Join(group, "+")] = entriesBody(group)
	}
	s := newTestService(t, f, parser.Options{})

	// Act
	records, err := s.Get(context.Background(), all, "")

	// Assert
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(f.urls) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(f.urls))
	}
	if len(records) != 25 {
		t.Fatalf("expected 25 records, got %d", len(records))
	}
	for i, r := range records {
		if want := fmt.Sprint(i + 1); r.EntryID() != want {
			t.Errorf("record %d: expected entry %s, got %s", i, want, r.EntryID())
		}
	}
}

func TestGet_AbortsOnBatchFailure(t *testing.T) {
	all := ids(15)
	second := root + "/get/" + strings.Join(all[10:], "+")
	f := &routeFetcher{
		bodies: map[string]string{root + "/get/" + strings.Join(all[:10], "+"): entriesBody(all[:10])},
		fail:   map[string]int{second: http.StatusBadGateway},
	}
	s := newTestService(t, f, parser.Options{})

	records, err := s.Get(context.Background(), all, "")

	if !errors.Is(err, domain.ErrRemoteRequest) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if records != nil {
		t.Errorf("partial results must be discarded, got %d", len(records))
	}
	var remote *domain.RemoteRequestError
	if !errors.As(err, &remote) || remote.URL != second {
		t.Errorf("expected failing batch URL %s in error, got %v", second, err)
	}
}

func TestGet_StopsOnCancelledContext(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{}}
	s := newTestService(t, f, parser.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, ids(3), "")

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(f.urls) != 0 {
		t.Errorf("no request expected after cancel, got %v", f.urls)
	}
}

func TestGet_RejectsRawOptions(t *testing.T) {
	s := newTestService(t, &routeFetcher{}, parser.Options{})

	_, err := s.Get(context.Background(), []string{"hsa:1"}, "aaseq")

	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected invalid query, got %v", err)
	}
}

func TestGetRaw_SingleEntryOptions(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{root + "/get/hsa:1/aaseq": ">hsa:1\nMKV\n"}}
	s := newTestService(t, f, parser.Options{})

	bodies, err := s.GetRaw(context.Background(), []string{"hsa:1"}, "aaseq")
	if err != nil || len(bodies) != 1 || !strings.HasPrefix(bodies[0], ">hsa:1") {
		t.Fatalf("unexpected raw result %v (%v)", bodies, err)
	}

	_, err = s.GetRaw(context.Background(), []string{"map00010", "map00020"}, "image")
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("image with two entries should be rejected, got %v", err)
	}
}

func TestGet_StrictModeSurfacesMalformedLines(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{root + "/get/hsa:1": "            orphan\n///\n"}}

	_, lenientErr := newTestService(t, f, parser.Options{}).Get(context.Background(), []string{"hsa:1"}, "")
	_, strictErr := newTestService(t, f, parser.Options{Strict: true}).Get(context.Background(), []string{"hsa:1"}, "")

	if lenientErr != nil {
		t.Errorf("lenient mode should skip the line, got %v", lenientErr)
	}
	if !errors.Is(strictErr, domain.ErrMalformedLine) {
		t.Errorf("expected malformed line error, got %v", strictErr)
	}
}

func TestLink_BuildsBothDirections(t *testing.T) {
	f := &routeFetcher{bodies: map[string]string{
		root + "/link/pathway/hsa": "hsa:10458\tpath:hsa04520\nhsa:10458\tpath:hsa04810\n",
	}}
	s := newTestService(t, f, parser.Options{})

	rel, err := s.Link(context.Background(), "pathway", "hsa")

	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if got := rel.Inverse["hsa:10458"]; !reflect.DeepEqual(got, []string{"path:hsa04520", "path:hsa04810"}) {
		t.Errorf("unexpected inverse %v", got)
	}
	if got := rel.Forward["path:hsa04810"]; !reflect.DeepEqual(got, []string{"hsa:10458"}) {
		t.Errorf("unexpected forward %v", got)
	}
	if len(f.urls) != 1 {
		t.Errorf("link must issue a single request, got %d", len(f.urls))
	}
}

// TestConv_GroupsByQuerySize tests that 5 sources with a group size of 2
// produce 3 per-group mappings in order.
func TestConv_GroupsByQuerySize(t *testing.T) {
	// Arrange
	src := []string{"hsa:1", "hsa:2", "hsa:3", "hsa:4", "hsa:5"}
	f := &routeFetcher{bodies: map[string]string{
		root + "/conv/ncbi-geneid/hsa:1+hsa:2": "hsa:1\tncbi-geneid:1\nhsa:2\tncbi-geneid:2\n",
		root + "/conv/ncbi-geneid/hsa:3+hsa:4": "hsa:3\tncbi-geneid:3\nhsa:4\tncbi-geneid:4\n",
		root + "/conv/ncbi-geneid/hsa:5":       "hsa:5\tncbi-geneid:5\n",
	}}
	s := newTestService(t, f, parser.Options{})

	// Act
	groups, err := s.Conv(context.Background(), "ncbi-geneid", src, 2)

	// Assert
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(groups))
	}
	if groups[2]["hsa:5"] != "ncbi-geneid:5" {
		t.Errorf("unexpected last group %v", groups[2])
	}

	merged, err := s.ConvMerged(context.Background(), "ncbi-geneid", src, 2)
	if err != nil || len(merged) != 5 {
		t.Errorf("expected 5 merged mappings, got %v (%v)", merged, err)
	}
}

func TestConv_DefaultQuerySize(t *testing.T) {
	src := ids(150)
	f := &routeFetcher{bodies: map[string]string{
		root + "/conv/ncbi-geneid/" + strings.Join(src[:100], "+"): "",
		root + "/conv/ncbi-geneid/" + strings.Join(src[100:], "+"): "",
	}}
	s := newTestService(t, f, parser.Options{})

	groups, err := s.Conv(context.Background(), "ncbi-geneid", src, 0)

	if err != nil || len(groups) != 2 {
		t.Errorf("expected 2 groups of the default size, got %d (%v)", len(groups), err)
	}
}

func TestConv_RequiresSources(t *testing.T) {
	s := newTestService(t, &routeFetcher{}, parser.Options{})

	_, err := s.Conv(context.Background(), "ncbi-geneid", nil, 0)

	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected invalid query, got %v", err)
	}
}

func TestQuery_SelectsGrammarByName(t *testing.T) {
	// Arrange
	f := &routeFetcher{bodies: map[string]string{
		root + "/list/organism": "T01001\thsa\tHomo sapiens\n",
	}}
	s := newTestService(t, f, parser.Options{})

	// Act
	parts, err := s.Query(context.Background(), domain.OpList, "organism", nil, "", domain.GrammarMatrix)

	// Assert
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	m, ok := parts[0].(domain.Matrix)
	if !ok || len(m) != 1 || m[0][2] != "Homo sapiens" {
		t.Errorf("unexpected result %#v", parts)
	}
}

func TestQuery_UnknownGrammar(t *testing.T) {
	s := newTestService(t, &routeFetcher{}, parser.Options{})

	_, err := s.Query(context.Background(), domain.OpList, "organism", nil, "", "kgml")

	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("expected invalid query, got %v", err)
	}
	if len(s.Grammars()) != 5 {
		t.Errorf("expected 5 grammars, got %v", s.Grammars())
	}
}
