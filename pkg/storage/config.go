package storage

// Config configures a PageCache's backing resources.
type Config struct {
	// DataFile is the path FileDisk opens; ignored when an in-memory cache
	// is constructed via NewMemoryEngine.
	DataFile string
	// PoolSize is the number of frames in the cache.
	PoolSize int
	// K is the LRU-K replacer's history depth.
	K int
}

// DefaultConfig returns sane defaults for dataFile, matching the teacher's
// convention of a constructor-paired default rather than zero-value config.
func DefaultConfig(dataFile string) Config {
	return Config{
		DataFile: dataFile,
		PoolSize: 256,
		K:        2,
	}
}

// NewEngine opens a file-backed PageCache per cfg.
func NewEngine(cfg Config) (*PageCache, *FileDisk, error) {
	disk, err := NewFileDisk(cfg.DataFile)
	if err != nil {
		return nil, nil, err
	}
	replacer := NewLRUKReplacer(cfg.K)
	return NewPageCache(disk, replacer, cfg.PoolSize), disk, nil
}

// NewMemoryEngine builds a PageCache over an in-memory disk, for tests.
func NewMemoryEngine(poolSize, k int) *PageCache {
	return NewPageCache(NewMemDisk(), NewLRUKReplacer(k), poolSize)
}
