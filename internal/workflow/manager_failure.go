package workflow

import "scribe/internal/services"

func failureHint(kind services.ErrorKind) string {
	switch kind {
	case services.KindInputNotFound:
		return "the source file was moved or deleted before the job started"
	case services.KindUnsupportedFormat:
		return "submit one of the extensions listed in media.extensions"
	case services.KindTimeout:
		return "raise jobs.timeout_seconds or use a smaller model"
	case services.KindExternalTool:
		return "check that uvx, whisperx and ffmpeg run from the daemon environment"
	case services.KindIO:
		return "check free space and permissions on the work and output directories"
	case services.KindConfiguration:
		return "run scribe config validate"
	case services.KindValidation:
		return "check the submitted file against media.max_file_size_mb"
	default:
		return "check logs for details"
	}
}
