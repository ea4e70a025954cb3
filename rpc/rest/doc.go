// Package rest provides the form based HTTP gateway of dCache.
//
// Parameters are accepted as query parameters or as url encoded form values,
// responses are JSON. All routes under /memcache address the default module,
// the same routes under /modules/{module}/memcache address a named one.
//
//	POST   /memcache          key, value, update, timeout, async   -> {"success": bool}
//	GET    /memcache          key                                  -> {"value": ...} | 404
//	DELETE /memcache          key                                  -> {"success": true} | 404
//	POST   /memcache/multi    keys, values, update, timeout, async -> {"success": bool}
//	GET    /memcache/multi    keys                                 -> {key: value, ...}
//	DELETE /memcache/multi    keys                                 -> {"success": true}
//	GET    /memcache/incr     key, delta|value, initial            -> {"success": true, "value": n}
//	POST   /memcache/incr     key, delta|value, initial            -> {"success": true, "value": n}
//	GET    /memcache/cas      key                                  -> {"value": ..., "version": n} | 404
//	POST   /memcache/cas      key, version, value, timeout         -> {"success": bool} | 404
//	POST   /memcache/counter  key, initialValue, type (int|long)   -> {"success": bool}
//	GET    /memcache/counter  key                                  -> {"type": "int"|"long", "value": n} | 404
//	DELETE /memcache/counter  key                                  -> {"success": bool}
//	POST   /memcache/jcache   cache, key, value                    -> {"success": true}
//	GET    /memcache/jcache   cache, key                           -> {key: value} | 404
//	DELETE /memcache/jcache   cache, key                           -> {key: removed} | 404
//	GET    /modules                                                -> {"modules": [...], "default_module": ...}
//	GET    /metrics                                                -> Prometheus text format
//
// The timeout parameter is given in seconds. Errors are returned as {"error": "..."}
// with a status derived from the store return code: invalid arguments map to 400,
// counters holding non numeric values to 409.
//
// GET /memcache/counter increments the counter by one before returning it.
// GET /memcache/cas without a key runs a compare-and-swap round trip on a scratch
// key and reports whether it behaved as expected.
package rest
