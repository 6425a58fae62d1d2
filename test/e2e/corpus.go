// Package e2e provides end-to-end tests over a multi-format corpus and many questions.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
)

// E2EDocument is a document in the E2E corpus. Pages are in page order.
type E2EDocument struct {
	ID    string
	Pages []string
}

// QueryTestCase is a question and the page that must be cited for it.
type QueryTestCase struct {
	Query       string
	DocumentID  string
	PageNumber  int
	Description string
}

// Corpus holds documents and question test cases for E2E tests.
type Corpus struct {
	Documents    []E2EDocument
	TestCases    []QueryTestCase
	TotalPages   int
	TotalQueries int
}

type topic struct {
	content string
	phrase  string
}

var topics = []topic{
	{"Python is a high-level programming language. Python programming language is used for web development and data science.", "Python programming"},
	{"Kubernetes is an open-source container orchestration platform. Kubernetes container orchestration automates deployment and scaling.", "Kubernetes orchestration"},
	{"React is a JavaScript library. React hooks and components enable building user interfaces.", "React hooks"},
	{"Go is a statically typed language. Go golang concurrency is achieved with goroutines and channels.", "golang goroutines"},
	{"PostgreSQL is an advanced relational database. PostgreSQL relational database supports JSON and full-text search.", "PostgreSQL relational"},
	{"Docker enables building and shipping applications. Docker container images are portable across environments.", "Docker images"},
	{"Machine learning is a subset of AI. Machine learning algorithms learn patterns from data.", "machine learning algorithms"},
	{"Neural networks are inspired by the brain. Neural network deep learning powers modern AI.", "neural network brain"},
	{"REST is an architectural style for APIs. REST API endpoints use HTTP methods and status codes.", "REST endpoints"},
	{"GraphQL is a query language for APIs. GraphQL query language lets clients request exactly what they need.", "GraphQL clients"},
	{"TypeScript adds static types to JavaScript. TypeScript type system catches errors at compile time.", "TypeScript compile"},
	{"Redis is an in-memory data store. Redis in-memory cache is used for sessions and caching.", "Redis sessions"},
	{"Elasticsearch is a search and analytics engine. Elasticsearch full-text search scales horizontally.", "Elasticsearch analytics"},
	{"AWS Lambda runs code without servers. AWS Lambda serverless scales automatically.", "Lambda serverless"},
	{"Terraform manages cloud infrastructure. Terraform infrastructure as code is declarative.", "Terraform declarative"},
	{"Prometheus is a monitoring system. Prometheus monitoring metrics are time-series based.", "Prometheus monitoring"},
	{"gRPC is a high-performance RPC framework. gRPC remote procedure calls use HTTP/2 and protobuf.", "gRPC protobuf"},
	{"OAuth 2.0 is an authorization framework. OAuth 2.0 authorization enables secure delegated access.", "OAuth delegated"},
	{"JWT is a compact token format. JWT JSON web tokens are used for authentication.", "JWT tokens"},
	{"Git is a distributed version control system. Git version control tracks changes in source code.", "Git version control"},
	{"Microservices split an app into small services. Microservices architecture enables independent deployment.", "microservices independent"},
	{"Apache Kafka is a distributed event stream platform. Apache Kafka streaming handles high throughput.", "Kafka streaming"},
	{"Nginx is a web server and reverse proxy. Nginx reverse proxy balances load and serves static files.", "Nginx proxy"},
	{"Cryptography secures data. Cryptography encryption decryption uses keys and algorithms.", "cryptography encryption"},
	{"Event sourcing stores state as events. Event sourcing CQRS separates read and write models.", "event sourcing CQRS"},
	{"Semantic search uses meaning not just keywords. Semantic search embeddings capture context.", "semantic embeddings"},
	{"RAG combines retrieval and generation. RAG retrieval augmented grounds LLMs in documents.", "RAG grounds"},
	{"Rate limiting protects APIs. Rate limiting throttling can be per-user or global.", "rate limiting throttling"},
	{"Circuit breaker stops cascading failures. Circuit breaker resilience pattern fails fast.", "circuit breaker cascading"},
	{"Graceful shutdown drains connections. Graceful shutdown signal handles SIGTERM.", "graceful shutdown SIGTERM"},
}

// corpusFormats cycles through the document formats; slide formats hold three pages.
var corpusFormats = []string{".pptx", ".odp", ".txt"}

// BuildCorpus groups the topics into documents of alternating formats. Each page carries one
// topic, and each topic yields one question whose distinctive phrase appears on that page only.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	next := 0
	for n := 0; next < len(topics); n++ {
		ext := corpusFormats[n%len(corpusFormats)]
		size := 3
		if ext == ".txt" {
			size = 1
		}
		if next+size > len(topics) {
			size = len(topics) - next
		}
		doc := E2EDocument{ID: fmt.Sprintf("e2e-doc-%02d%s", n+1, ext)}
		for i, t := range topics[next : next+size] {
			doc.Pages = append(doc.Pages, t.content)
			c.TestCases = append(c.TestCases, QueryTestCase{
				Query:       t.phrase,
				DocumentID:  doc.ID,
				PageNumber:  i + 1,
				Description: fmt.Sprintf("%q cites %s page %d", t.phrase, doc.ID, i+1),
			})
		}
		next += size
		c.Documents = append(c.Documents, doc)
	}
	c.TotalPages = len(topics)
	c.TotalQueries = len(c.TestCases)
	return c
}

// WriteFiles writes every document into dir and returns their paths in corpus order.
func (c *Corpus) WriteFiles(dir string) ([]string, error) {
	paths := make([]string, 0, len(c.Documents))
	for _, d := range c.Documents {
		content, err := WriteMinimalFile(filepath.Ext(d.ID), d.Pages)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", d.ID, err)
		}
		p := filepath.Join(dir, d.ID)
		if err := os.WriteFile(p, content, 0o600); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
