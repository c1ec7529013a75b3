// Package guardscan embeds the guardscan content threat scoring engine
// in-process: domain blocklist, keyword analysis, pluggable vision and text
// classifiers, ensemble fusion and a TTL+LRU verdict cache.
//
// Scans never fail. Errors along the way (bad URL, fetch timeout, undecodable
// image) produce a fail-open Result flagged "error" or "image_decode_error".
//
//	engine, _ := guardscan.New(ctx,
//	    guardscan.WithTextClassifier(myModerator),
//	    guardscan.WithBlockedDomains("bad.example"),
//	)
//	defer engine.Close()
//
//	res := engine.ScanURL(ctx, "https://bad.example/page")
//	// res.IsSafe == false, res.Flags == ["domain_blocklist"]
//
// Set WithRedis to share verdicts between processes.
package guardscan
