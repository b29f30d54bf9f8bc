// Package pipeline turns a crawl seed into one composite text document.
//
// A Job flows through ordered steps: the crawl step collects pages with a
// crawler.Spider, the extract step renders each page with an
// extract.Extractor and the assemble step joins the page documents.
// ExtractionPipeline wires the steps together and BatchProcessor runs
// several seeds concurrently with errgroup.
package pipeline
