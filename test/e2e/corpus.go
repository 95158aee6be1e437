// Package e2e exercises the assembled system end to end: a seeded knowledge
// base queried through the full retrieval path, in memory and from files.
package e2e

import "strings"

// SeedDoc is one knowledge base entry. Source becomes the ingestion source
// name; Text carries a distinctive phrase so queries can assert that the
// right entry came back.
type SeedDoc struct {
	Source string
	Text   string
}

// QueryCase pairs a query with the source(s) that must appear somewhere in
// its results. Keywords feed the hybrid search leg.
type QueryCase struct {
	Query       string
	Keywords    []string
	WantSources []string
}

// Corpus is the seeded knowledge base plus its query cases.
type Corpus struct {
	Docs  []SeedDoc
	Cases []QueryCase
}

// topics is the raw corpus material. The phrase appears verbatim in the text
// and doubles as the query for that entry.
var topics = []struct {
	source string
	phrase string
	text   string
}{
	{"langs-python", "Python interpreter", "The Python interpreter executes bytecode on a virtual machine. Python is widely used for scripting and data analysis."},
	{"langs-go", "goroutines and channels", "Go programs achieve concurrency through goroutines and channels. The scheduler multiplexes goroutines onto OS threads."},
	{"langs-rust", "Rust borrow checker", "The Rust borrow checker enforces memory safety at compile time. Ownership rules prevent data races without a garbage collector."},
	{"infra-kubernetes", "Kubernetes control plane", "The Kubernetes control plane schedules pods across worker nodes. Controllers reconcile the cluster toward the declared state."},
	{"infra-docker", "Docker image layers", "Docker image layers are content addressed and shared between images. A container adds a writable layer on top."},
	{"infra-terraform", "Terraform state file", "The Terraform state file records which real resources belong to the configuration. Plans diff the state against reality."},
	{"db-postgres", "PostgreSQL write-ahead log", "The PostgreSQL write-ahead log guarantees durability. Checkpoints flush dirty pages and bound recovery time."},
	{"db-redis", "Redis keyspace eviction", "Redis keyspace eviction removes keys when memory is full. Policies include LRU, LFU, and TTL-based sampling."},
	{"db-sqlite", "SQLite single file", "SQLite stores the entire database in a single file. Transactions use a rollback journal or write-ahead logging."},
	{"search-inverted", "inverted index posting lists", "An inverted index maps terms to posting lists of documents. Ranking combines term frequency and document frequency."},
	{"search-embeddings", "embedding vectors cosine", "Dense embedding vectors place similar texts near each other. Cosine similarity scores the angle between vectors."},
	{"search-chunking", "chunk overlap context", "Splitting long documents needs chunk overlap so context survives the boundary. Too much overlap bloats the index."},
	{"search-reranking", "reranking retrieved candidates", "Reranking retrieved candidates with a second model improves precision. The first pass only needs good recall."},
	{"ml-training", "gradient descent minimizes", "Gradient descent minimizes the loss by following its negative gradient. Learning rate schedules control the step size."},
	{"ml-transformers", "transformer attention heads", "Transformer attention heads let every token attend to every other token. Positional encodings inject word order."},
	{"ml-quantization", "model quantization int8", "Model quantization to int8 shrinks weights and speeds up inference. Accuracy loss is usually small after calibration."},
	{"net-http", "HTTP status codes", "HTTP status codes signal the outcome of a request. The 4xx range blames the client and 5xx the server."},
	{"net-grpc", "gRPC protocol buffers", "gRPC serializes messages with protocol buffers over HTTP/2. Streaming calls keep a single connection open."},
	{"net-tls", "TLS certificate chain", "A TLS certificate chain links the server certificate to a trusted root. Clients verify every link during the handshake."},
	{"ops-logging", "structured logging fields", "Structured logging attaches typed fields to every entry. Log aggregators can then filter and group without parsing."},
	{"ops-metrics", "latency percentile histograms", "Latency percentile histograms reveal tail behavior that averages hide. The p99 matters more than the mean."},
	{"ops-backup", "backup restore drill", "A backup is only real after a restore drill proves it. Recovery objectives bound acceptable data loss and downtime."},
	{"sec-hashing", "password hashing bcrypt", "Password hashing with bcrypt is deliberately slow. Cost factors rise as hardware gets faster."},
	{"sec-tokens", "signed session tokens", "Signed session tokens let servers verify claims without a lookup. Expiry and rotation limit the damage of a leak."},
	{"arch-queues", "message queue backpressure", "A message queue decouples producers from consumers. Backpressure keeps slow consumers from being buried."},
	{"arch-caching", "cache invalidation staleness", "Cache invalidation trades staleness against load. Write-through keeps the cache warm at the cost of write latency."},
	{"arch-events", "event sourcing append-only", "Event sourcing keeps an append-only log of changes. Current state is a fold over the events."},
	{"team-reviews", "code review small diffs", "Code review works best on small diffs. Reviewers catch logic errors that tests and linters miss."},
}

// BuildCorpus returns the seeded corpus with one query case per entry.
func BuildCorpus() *Corpus {
	c := &Corpus{
		Docs:  make([]SeedDoc, 0, len(topics)),
		Cases: make([]QueryCase, 0, len(topics)),
	}
	for _, t := range topics {
		c.Docs = append(c.Docs, SeedDoc{Source: t.source, Text: t.text})
		c.Cases = append(c.Cases, QueryCase{
			Query:       t.phrase,
			Keywords:    strings.Fields(t.phrase),
			WantSources: []string{t.source},
		})
	}
	return c
}

// HasPhrase reports whether the doc's text contains the phrase.
func (d SeedDoc) HasPhrase(phrase string) bool {
	return strings.Contains(d.Text, phrase)
}
