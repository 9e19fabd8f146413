// Package cache implements the agent's cache storage: a set of named cache
// generations, each mapping a GET request identity to a stored response.
// Two backends are provided. The filesystem backend lays entries out as
// StoragePath/<generation>/<sha1>.{json,body} and writes them with temp file
// + rename. The leveldb backend keeps every generation in one database under
// prefixed keys. Lookups across generations follow creation order, so the
// oldest generation that holds a request answers first.
package cache
