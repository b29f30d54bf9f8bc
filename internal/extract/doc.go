// Package extract turns crawled HTML pages into flat text documents with
// captioned images.
//
// For every page the Extractor isolates the readable main content, looks
// for <img> elements inside it (checking src, data-src, data-original and
// data-lazy-src in that order), downloads the images concurrently into a
// cache directory, captions a bounded number of them and renders:
//
//	### <page url>
//
//	<main text>
//
//	![img](<local path>)
//	*<caption>*
//
// Image downloads are best effort: a failed or non-image response simply
// produces no file and no caption. Captioner errors are returned to the
// caller.
package extract
