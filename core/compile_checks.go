package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TokenSource    = (*AuthManager)(nil)
	_ AuthGateway    = (*HTTPAuthGateway)(nil)
	_ DownloadSink   = FileSink{}
	_ StorageAdapter = NopStorage{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
