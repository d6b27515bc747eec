package data

import (
	_ "embed"
	"fmt"
	"math/rand"

	"github.com/pkoukk/tiktoken-go"
)

//go:embed corpus.txt
var corpusText string

// corpusEncoding is the GPT-2 byte pair encoding.
const corpusEncoding = "r50k_base"

// corpus serves batches of overlapping windows from the embedded text,
// tokenized with the GPT-2 BPE.
type corpus struct {
	tokens []int32
	cfg    Config
	rng    *rand.Rand

	batches []Batch
}

// NewCorpus creates a source backed by the embedded text corpus. Token ids
// above the configured vocab size are clamped into range, so small test
// vocabularies still work.
func NewCorpus(cfg Config) (Source, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.NumBatches <= 0 {
		cfg.NumBatches = 8
	}
	enc, err := tiktoken.GetEncoding(corpusEncoding)
	if err != nil {
		return nil, fmt.Errorf("data: load %s encoding: %w", corpusEncoding, err)
	}
	ids := enc.Encode(corpusText, nil, nil)
	if len(ids) < cfg.BlockSize+2 {
		return nil, fmt.Errorf("data: corpus too short: %d tokens for block size %d",
			len(ids), cfg.BlockSize)
	}

	tokens := make([]int32, len(ids))
	for i, id := range ids {
		tokens[i] = int32(id % cfg.VocabSize)
	}

	c := &corpus{
		tokens: tokens,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for i := 0; i < cfg.NumBatches; i++ {
		c.batches = append(c.batches, c.sample())
	}
	return c, nil
}

// sample draws one batch of random windows from the token stream.
func (c *corpus) sample() Batch {
	maxStart := len(c.tokens) - c.cfg.BlockSize - 1
	rows := make([][]int32, c.cfg.BatchSize)
	for r := range rows {
		start := c.rng.Intn(maxStart)
		rows[r] = c.tokens[start : start+c.cfg.BlockSize+1]
	}
	return batchFromRows(rows, c.cfg.BatchSize, c.cfg.BlockSize)
}

func (c *corpus) Batch(step int) Batch {
	return c.batches[step%len(c.batches)]
}
