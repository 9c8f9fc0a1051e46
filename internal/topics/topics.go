// Package topics fits a latent Dirichlet allocation model over the
// imported talks, a soft alternative to the hard cluster labelings.
// Each talk is one document whose terms are its tags. The vectoriser
// tokenises on letter runs, so multi-word tags are folded to a single
// token and mapped back to the original tag for display.
package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/james-bowman/nlp"
	"gonum.org/v1/gonum/mat"

	"github.com/copperline/tagmap/internal/store"
)

const (
	// DefaultTopics is the number of topics fitted when none is requested.
	DefaultTopics = 8

	ldaIterations    = 50
	topTermsPerTopic = 8
)

// Options configures a topic model fit.
type Options struct {
	Topics int
}

// Result summarizes a fitted topic model.
type Result struct {
	RunID  string
	Topics []store.Topic
	Talks  int
}

// Modeler fits topic models over the imported talks and persists them
// against an analysis run.
type Modeler struct {
	st store.Store
}

// NewModeler creates a topic modeler backed by the given store.
func NewModeler(st store.Store) *Modeler {
	return &Modeler{st: st}
}

// Fit builds the model and saves its topics and per-talk weights. An
// empty run id attaches to the latest analysis run.
func (m *Modeler) Fit(ctx context.Context, runID string, opts Options) (*Result, error) {
	k := opts.Topics
	if k <= 0 {
		k = DefaultTopics
	}

	run, err := m.st.FindRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("resolving run: %w", err)
	}
	if run == nil {
		if runID == "" {
			return nil, fmt.Errorf("no analysis runs found (run 'tagmap analyze' first)")
		}
		return nil, fmt.Errorf("run %q not found", runID)
	}

	talks, err := m.st.ListTalks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing talks: %w", err)
	}
	byTalk, err := m.st.AssignmentsByTalk(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading assignments: %w", err)
	}

	// One document per tagged talk
	tokenToTag := make(map[string]string)
	docIDs := make([]int64, 0, len(talks))
	corpus := make([]string, 0, len(talks))
	for _, talk := range talks {
		assigned := byTalk[talk.ID]
		if len(assigned) == 0 {
			continue
		}
		terms := make([]string, 0, len(assigned))
		for _, tag := range assigned {
			token := tagToken(tag)
			if token == "" {
				continue
			}
			if _, seen := tokenToTag[token]; !seen {
				tokenToTag[token] = tag
			}
			terms = append(terms, token)
		}
		if len(terms) == 0 {
			continue
		}
		docIDs = append(docIDs, talk.ID)
		corpus = append(corpus, strings.Join(terms, " "))
	}
	if len(corpus) < 2 {
		return nil, fmt.Errorf("topic model needs at least 2 tagged talks, have %d", len(corpus))
	}
	if k > len(corpus) {
		k = len(corpus)
	}
	if k > len(tokenToTag) {
		k = len(tokenToTag)
	}

	docsOverTopics, topicsOverTerms, vocab, err := fitModel(k, corpus)
	if err != nil {
		return nil, fmt.Errorf("fitting topic model: %w", err)
	}

	topics := topTopicTerms(topicsOverTerms, vocab, tokenToTag)
	weights := talkWeights(docIDs, docsOverTopics)

	if err := m.st.SaveTopics(ctx, run.ID, topics, weights); err != nil {
		return nil, fmt.Errorf("saving topics: %w", err)
	}

	return &Result{RunID: run.ID, Topics: topics, Talks: len(docIDs)}, nil
}

// fitModel runs the vectoriser and LDA as one pipeline. The returned
// document matrix is topics x docs; the term matrix is topics x terms.
func fitModel(k int, corpus []string) (mat.Matrix, mat.Matrix, []string, error) {
	vectoriser := nlp.NewCountVectoriser()

	lda := nlp.NewLatentDirichletAllocation(k)
	lda.Processes = 1
	lda.Iterations = ldaIterations
	lda.TransformationPasses = ldaIterations / 2

	pipeline := nlp.NewPipeline(vectoriser, lda)
	docsOverTopics, err := pipeline.FitTransform(corpus...)
	if err != nil {
		return nil, nil, nil, err
	}
	topicsOverTerms := lda.Components()

	vocab := make([]string, len(vectoriser.Vocabulary))
	for term, idx := range vectoriser.Vocabulary {
		vocab[idx] = term
	}
	return docsOverTopics, topicsOverTerms, vocab, nil
}

// topTopicTerms ranks each topic's terms by weight and translates the
// tokens back into tag names.
func topTopicTerms(topicsOverTerms mat.Matrix, vocab []string, tokenToTag map[string]string) []store.Topic {
	rows, cols := topicsOverTerms.Dims()

	type ranked struct {
		term   string
		weight float64
	}

	topics := make([]store.Topic, 0, rows)
	for topic := 0; topic < rows; topic++ {
		terms := make([]ranked, 0, cols)
		for term := 0; term < cols && term < len(vocab); term++ {
			terms = append(terms, ranked{term: vocab[term], weight: topicsOverTerms.At(topic, term)})
		}
		sort.Slice(terms, func(i, j int) bool {
			if terms[i].weight != terms[j].weight {
				return terms[i].weight > terms[j].weight
			}
			return terms[i].term < terms[j].term
		})

		n := topTermsPerTopic
		if n > len(terms) {
			n = len(terms)
		}
		names := make([]string, n)
		for i := 0; i < n; i++ {
			if tag, ok := tokenToTag[terms[i].term]; ok {
				names[i] = tag
			} else {
				names[i] = terms[i].term
			}
		}
		topics = append(topics, store.Topic{Ordinal: topic + 1, Terms: names})
	}
	return topics
}

// talkWeights flattens the topics x docs distribution into rows keyed
// by talk id and 1-based topic ordinal.
func talkWeights(docIDs []int64, docsOverTopics mat.Matrix) []store.TopicWeight {
	rows, cols := docsOverTopics.Dims()

	weights := make([]store.TopicWeight, 0, rows*cols)
	for doc := 0; doc < cols && doc < len(docIDs); doc++ {
		for topic := 0; topic < rows; topic++ {
			weights = append(weights, store.TopicWeight{
				TalkID: docIDs[doc],
				Topic:  topic + 1,
				Weight: docsOverTopics.At(topic, doc),
			})
		}
	}
	return weights
}

// tagToken folds a tag to the single lowercase letter run the
// vectoriser will produce for it.
func tagToken(tag string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(tag) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
