package providers

import (
	"github.com/smallbiznis/frostclub/internal/providers/email"
	"github.com/smallbiznis/frostclub/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	email.Module,
	pdf.Module,
)
